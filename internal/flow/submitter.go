package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yomakenya/smsbridge/internal/metrics"
	"github.com/yomakenya/smsbridge/internal/models"
)

// Registrar submits a completed registration to the external provider.
type Registrar interface {
	CreateUser(ctx context.Context, rec models.RegistrationRecord) (*models.OnboardedUser, error)
}

// AuditSink records a successful onboarding. Persistence is best-effort
// auditing, not a commit gate: a sink failure never rolls back the
// registration.
type AuditSink interface {
	RecordOnboarded(user models.OnboardedUser) error
}

// DefaultCountryCode is used when none is configured.
const DefaultCountryCode = "KE"

// Submitter builds the external registration payload from a completed
// conversation and submits it.
type Submitter struct {
	registrar   Registrar
	audit       AuditSink
	countryCode string
}

// NewSubmitter creates a Submitter. An empty countryCode falls back to
// DefaultCountryCode.
func NewSubmitter(registrar Registrar, audit AuditSink, countryCode string) *Submitter {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Submitter{registrar: registrar, audit: audit, countryCode: countryCode}
}

// BuildRecord assembles the registration payload from collected answers. The
// conversation's phone number is the registration contact; display name
// defaults to "firstName surname".
func (s *Submitter) BuildRecord(conv *models.Conversation) models.RegistrationRecord {
	firstName := conv.Answers[models.AnswerFirstName]
	surname := conv.Answers[models.AnswerSurname]
	return models.RegistrationRecord{
		FirstName:   firstName,
		Surname:     surname,
		CountryCode: s.countryCode,
		PhoneNumber: conv.Phone,
		DisplayName: firstName + " " + surname,
		GenderID:    conv.Answers[models.AnswerGenderID],
		EducationID: conv.Answers[models.AnswerEducationID],
	}
}

// Submit sends the registration to the provider and, on success, records the
// result in the audit sink. It returns the user-facing message for the
// outcome; err is non-nil only for provider failures other than a duplicate
// account.
func (s *Submitter) Submit(ctx context.Context, conv *models.Conversation) (userMessage string, err error) {
	rec := s.BuildRecord(conv)
	if err := rec.Validate(); err != nil {
		// Answers are validated stage by stage, so this only trips on a
		// conversation corrupted outside the engine.
		slog.Error("registration record invalid", "error", err, "phone", conv.Phone)
		metrics.Registrations.WithLabelValues(metrics.OutcomeError).Inc()
		return msgRegistrationError, fmt.Errorf("invalid registration record: %w", err)
	}

	user, err := s.registrar.CreateUser(ctx, rec)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyRegistered) {
			slog.Info("registration skipped, account exists", "phone", conv.Phone)
			metrics.Registrations.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			return msgAlreadyRegistered, err
		}
		slog.Error("registration failed", "error", err, "phone", conv.Phone)
		metrics.Registrations.WithLabelValues(metrics.OutcomeError).Inc()
		return msgRegistrationError, err
	}

	slog.Info("registration succeeded", "phone", conv.Phone, "user_id", user.ID)
	metrics.Registrations.WithLabelValues(metrics.OutcomeOK).Inc()

	if s.audit != nil {
		if auditErr := s.audit.RecordOnboarded(*user); auditErr != nil {
			// The account exists; losing the audit row is a reporting gap,
			// not a registration failure.
			slog.Error("failed to record onboarded user", "error", auditErr, "user_id", user.ID)
		}
	}

	return msgRegistered, nil
}
