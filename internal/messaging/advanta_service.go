package messaging

import (
	"context"
	"log/slog"

	"github.com/yomakenya/smsbridge/internal/advanta"
	"github.com/yomakenya/smsbridge/internal/metrics"
)

// AdvantaService implements the Service interface using the Advanta SMS API.
type AdvantaService struct {
	client *advanta.Client
}

// NewAdvantaService creates an AdvantaService over the given client.
func NewAdvantaService(client *advanta.Client) *AdvantaService {
	return &AdvantaService{client: client}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone number
// to the bare-digit form Advanta expects.
func (s *AdvantaService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizeRecipient(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("AdvantaService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendMessage sends a message via Advanta.
func (s *AdvantaService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("AdvantaService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if _, err := s.client.SendSMS(ctx, canonicalTo, body); err != nil {
		return err
	}
	metrics.SMSSent.WithLabelValues("advanta").Inc()
	return nil
}
