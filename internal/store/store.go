// Package store provides storage backends for the onboarding audit trail.
//
// Every successful registration is recorded as an OnboardedUser. The store is
// an audit sink, not a commit gate: callers treat write failures as
// non-fatal. Backends: in-memory (default), SQLite, and PostgreSQL.
package store

import (
	"strings"
	"sync"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Store is the audit persistence interface.
type Store interface {
	// RecordOnboarded appends a successful registration to the audit trail.
	RecordOnboarded(user models.OnboardedUser) error
	// GetOnboarded returns all recorded registrations.
	GetOnboarded() ([]models.OnboardedUser, error)
	// IsOnboarded reports whether a registration with the given email or
	// phone number has already been recorded. Empty arguments never match.
	IsOnboarded(email, phone string) (bool, error)
	// Close releases backend resources.
	Close() error
}

// InMemoryStore keeps the audit trail in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	users []models.OnboardedUser
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) RecordOnboarded(user models.OnboardedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
	return nil
}

func (s *InMemoryStore) GetOnboarded() ([]models.OnboardedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OnboardedUser, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *InMemoryStore) IsOnboarded(email, phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if matchesContact(u, email, phone) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) Close() error { return nil }

func matchesContact(u models.OnboardedUser, email, phone string) bool {
	if email != "" && strings.EqualFold(u.Email, email) {
		return true
	}
	if phone != "" && u.PhoneNumber == phone {
		return true
	}
	return false
}
