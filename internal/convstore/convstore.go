// Package convstore holds in-progress registration conversations keyed by
// canonical phone number, with expiry-based eviction.
package convstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Default eviction parameters.
const (
	// DefaultMaxIdle is how long a conversation may sit untouched before the
	// sweep evicts it.
	DefaultMaxIdle = 30 * time.Minute
	// DefaultSweepInterval is how often the sweep runs.
	DefaultSweepInterval = 15 * time.Minute
)

// Store persists conversation state. Implementations must be safe for
// concurrent use; callers serialize the get/compute/put sequence per phone
// with a KeyedMutex.
type Store interface {
	// Get returns the conversation for phone, or nil if none exists.
	Get(ctx context.Context, phoneNumber string) (*models.Conversation, error)

	// Put stores the conversation under its phone number.
	Put(ctx context.Context, conv *models.Conversation) error

	// Delete removes the conversation for phone. Deleting a missing
	// conversation is not an error.
	Delete(ctx context.Context, phoneNumber string) error

	// SweepExpired removes conversations idle longer than maxIdle and
	// returns how many were evicted.
	SweepExpired(ctx context.Context, maxIdle time.Duration) (int, error)
}

// InMemoryStore is the default single-process conversation store.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewInMemoryStore creates an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*models.Conversation)}
}

// Get returns the conversation for phone, or nil if none exists.
func (s *InMemoryStore) Get(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[phoneNumber]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state outside Put.
	clone := *conv
	clone.Answers = make(map[string]string, len(conv.Answers))
	for k, v := range conv.Answers {
		clone.Answers[k] = v
	}
	return &clone, nil
}

// Put stores the conversation under its phone number.
func (s *InMemoryStore) Put(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *conv
	clone.Answers = make(map[string]string, len(conv.Answers))
	for k, v := range conv.Answers {
		clone.Answers[k] = v
	}
	s.conversations[conv.Phone] = &clone
	return nil
}

// Delete removes the conversation for phone.
func (s *InMemoryStore) Delete(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, phoneNumber)
	return nil
}

// SweepExpired removes conversations idle longer than maxIdle.
func (s *InMemoryStore) SweepExpired(ctx context.Context, maxIdle time.Duration) (int, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for phoneNumber, conv := range s.conversations {
		if now.Sub(conv.LastTouchedAt) > maxIdle {
			delete(s.conversations, phoneNumber)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("swept expired conversations", "count", evicted)
	}
	return evicted, nil
}

// Len reports how many conversations are currently stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
