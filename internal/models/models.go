// Package models defines the core data structures for the SMS onboarding bridge.
//
// It includes conversation state, reference data options, and the registration
// payload submitted to the Yoma B2B API, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Stage identifies the current step of the registration dialogue.
type Stage string

const (
	// StageAwaitingFirstName is the initial stage; the next message is stored as the first name.
	StageAwaitingFirstName Stage = "AWAITING_FIRST_NAME"
	// StageAwaitingSurname expects the sender's surname.
	StageAwaitingSurname Stage = "AWAITING_SURNAME"
	// StageAwaitingGender expects a gender matching the conversation's snapshot list.
	StageAwaitingGender Stage = "AWAITING_GENDER"
	// StageAwaitingEducation expects an education level matching the snapshot list.
	// A valid answer triggers submission.
	StageAwaitingEducation Stage = "AWAITING_EDUCATION"
)

// IsValidStage checks if the given stage is supported.
func IsValidStage(s Stage) bool {
	switch s {
	case StageAwaitingFirstName, StageAwaitingSurname, StageAwaitingGender, StageAwaitingEducation:
		return true
	default:
		return false
	}
}

// Answer keys used in Conversation.Answers.
const (
	AnswerFirstName   = "firstName"
	AnswerSurname     = "surname"
	AnswerGenderID    = "genderId"
	AnswerEducationID = "educationId"
)

// Error variables for better error handling and testability
var (
	ErrAlreadyRegistered = errors.New("user already registered")
	ErrMissingContact    = errors.New("registration requires an email or phone number")
	ErrMissingCountry    = errors.New("registration requires a country code")
	ErrMissingName       = errors.New("registration requires a first name and surname")
	ErrUnknownCategory   = errors.New("unknown reference data category")
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
)

// ReferenceOption is a single entry of an externally sourced lookup list
// (e.g. a gender or education level), with a stable identifier and the
// display name shown to users.
type ReferenceOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversation holds the in-progress registration dialogue for one phone
// number. The gender and education lists are the reference snapshot bound at
// creation time; answers are validated against these exact lists for the
// lifetime of the conversation.
type Conversation struct {
	Phone         string            `json:"phone"`
	Stage         Stage             `json:"stage"`
	Answers       map[string]string `json:"answers,omitempty"`
	Genders       []ReferenceOption `json:"genders,omitempty"`
	Educations    []ReferenceOption `json:"educations,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastTouchedAt time.Time         `json:"last_touched_at"`
}

// NewConversation creates a conversation at the initial stage.
func NewConversation(phone string) *Conversation {
	now := time.Now()
	return &Conversation{
		Phone:         phone,
		Stage:         StageAwaitingFirstName,
		Answers:       make(map[string]string),
		CreatedAt:     now,
		LastTouchedAt: now,
	}
}

// Touch updates the last-touched timestamp.
func (c *Conversation) Touch() {
	c.LastTouchedAt = time.Now()
}

// HasSnapshot reports whether reference data has been bound to this conversation.
func (c *Conversation) HasSnapshot() bool {
	return len(c.Genders) > 0 || len(c.Educations) > 0
}

// RegistrationRecord is the payload submitted to the registration provider.
// At least one of Email/PhoneNumber must be present before submission.
type RegistrationRecord struct {
	FirstName   string `json:"firstName"`
	Surname     string `json:"surname"`
	CountryCode string `json:"countryCodeAlpha2"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	GenderID    string `json:"genderId,omitempty"`
	EducationID string `json:"educationId,omitempty"`
}

// Validate performs validation on a RegistrationRecord before submission.
func (r *RegistrationRecord) Validate() error {
	if r.FirstName == "" || r.Surname == "" {
		return ErrMissingName
	}
	if r.CountryCode == "" {
		return ErrMissingCountry
	}
	if r.Email == "" && r.PhoneNumber == "" {
		return ErrMissingContact
	}
	return nil
}

// OnboardedUser is the provider's view of a created account, recorded in the
// audit store after a successful registration.
type OnboardedUser struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	Surname     string    `json:"surname"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CountryCode string    `json:"countryId,omitempty"`
	EducationID string    `json:"educationId,omitempty"`
	GenderID    string    `json:"genderId,omitempty"`
	DateOfBirth string    `json:"dateOfBirth,omitempty"`
	CreatedAt   time.Time `json:"dateCreated,omitempty"`
}

// WebhookResponse is the synchronous acknowledgement returned to the SMS
// aggregator. The shape is fixed by the aggregator's integration contract.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
