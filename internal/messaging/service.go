// Package messaging provides a pluggable SMS delivery abstraction.
package messaging

import (
	"context"
	"errors"
	"regexp"

	"github.com/yomakenya/smsbridge/internal/models"
)

// phoneNumberRegex matches characters stripped during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// MinPhoneDigits is the minimum digit count accepted as a recipient.
const MinPhoneDigits = 6

// Service defines a pluggable SMS delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// phone number into the form the transport expects (bare digits).
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

// canonicalizeRecipient strips non-digits and validates the result. Shared by
// the transport implementations.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", errors.New("invalid phone number: no digits found")
	}
	if len(canonical) < MinPhoneDigits {
		return "", errors.New("invalid phone number: too short")
	}
	return canonical, nil
}
