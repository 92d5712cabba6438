package scheduler

import (
	"testing"
	"time"

	"github.com/yomakenya/smsbridge/internal/convstore"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerAddJobInvalidExpr(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestScheduleSweep(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	store := convstore.NewInMemoryStore()
	if err := s.ScheduleSweep(store, 30*time.Minute, 15*time.Minute); err != nil {
		t.Errorf("Expected no error scheduling sweep, got %v", err)
	}
}
