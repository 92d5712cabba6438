package flow

import (
	"strings"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Outbound dialogue messages. Wording is part of the product surface; the
// option lists are appended from the conversation's reference snapshot.
const (
	msgWelcome           = "Welcome to Yoma! What's your first name?"
	msgAskSurname        = "Thanks! Now your surname?"
	msgAskGender         = "Got it. What's your gender?"
	msgAskEducation      = "Now your education level?"
	msgInvalidGender     = "Invalid gender."
	msgInvalidEducation  = "Invalid education level."
	msgRegistered        = "Thank you for registering with Yoma! You can now log in to your account."
	msgAlreadyRegistered = "This phone number is already registered. Please use different credentials."
	msgRegistrationError = "Sorry, there was an error creating your account. Please try again later."
)

// withOptions appends the available option names to a prompt, or returns the
// bare prompt when no snapshot is available (degraded start).
func withOptions(prompt string, options []models.ReferenceOption) string {
	if len(options) == 0 {
		return prompt
	}
	names := make([]string, 0, len(options))
	for _, opt := range options {
		names = append(names, opt.Name)
	}
	return prompt + " Available options: " + strings.Join(names, ", ")
}
