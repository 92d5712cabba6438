// Package scheduler provides cron-based background jobs for the bridge.
//
// Its one recurring job is the conversation sweep, which evicts dialogues
// idle past the expiry window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/metrics"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// 5-field cron parser plus @every descriptors, with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleSweep registers the recurring conversation sweep: every interval,
// conversations idle longer than maxIdle are evicted from the store.
func (s *Scheduler) ScheduleSweep(store convstore.Store, maxIdle, interval time.Duration) error {
	expr := fmt.Sprintf("@every %s", interval)
	return s.AddJob(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		swept, err := store.SweepExpired(ctx, maxIdle)
		if err != nil {
			slog.Error("conversation sweep failed", "error", err)
			return
		}
		if swept > 0 {
			metrics.ConversationsSwept.Add(float64(swept))
			slog.Info("conversation sweep evicted idle dialogues", "count", swept, "maxIdle", maxIdle)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
