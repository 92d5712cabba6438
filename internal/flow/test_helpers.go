package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Shared fakes for flow tests.

// fakeSender records outbound messages per recipient.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

type sentMessage struct {
	To   string
	Body string
}

func (s *fakeSender) SendMessage(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *fakeSender) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMessage{}
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeRegistrar captures the submitted record and returns a canned outcome.
type fakeRegistrar struct {
	mu        sync.Mutex
	submitted []models.RegistrationRecord
	err       error
	user      *models.OnboardedUser
}

func (r *fakeRegistrar) CreateUser(ctx context.Context, rec models.RegistrationRecord) (*models.OnboardedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, rec)
	if r.err != nil {
		return nil, r.err
	}
	if r.user != nil {
		return r.user, nil
	}
	return &models.OnboardedUser{
		ID:          "user-1",
		FirstName:   rec.FirstName,
		Surname:     rec.Surname,
		PhoneNumber: rec.PhoneNumber,
		CountryCode: rec.CountryCode,
	}, nil
}

func (r *fakeRegistrar) lastSubmitted() (models.RegistrationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.submitted) == 0 {
		return models.RegistrationRecord{}, false
	}
	return r.submitted[len(r.submitted)-1], true
}

// fakeAudit records onboarded users and can be told to fail.
type fakeAudit struct {
	mu       sync.Mutex
	recorded []models.OnboardedUser
	err      error
}

func (a *fakeAudit) RecordOnboarded(user models.OnboardedUser) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.recorded = append(a.recorded, user)
	return nil
}

// fakeLookup is a refdata.Provider serving fixed gender/education lists.
type fakeLookup struct {
	mu      sync.Mutex
	failing bool
}

func (p *fakeLookup) setFailing(failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = failing
}

func (p *fakeLookup) Lookup(ctx context.Context, category string) ([]models.ReferenceOption, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return nil, errors.New("lookup unavailable")
	}
	switch category {
	case "gender":
		return []models.ReferenceOption{
			{ID: "g-female", Name: "Female"},
			{ID: "g-male", Name: "Male"},
			{ID: "g-na", Name: "Prefer not to say"},
		}, nil
	case "education":
		return []models.ReferenceOption{
			{ID: "e-none", Name: "No formal education"},
			{ID: "e-primary", Name: "Primary"},
			{ID: "e-secondary", Name: "Secondary"},
			{ID: "e-tertiary", Name: "Tertiary"},
		}, nil
	default:
		return nil, models.ErrUnknownCategory
	}
}
