// Package testutil provides common test utilities and helpers for bridge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yomakenya/smsbridge/internal/api"
	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/flow"
	"github.com/yomakenya/smsbridge/internal/models"
	"github.com/yomakenya/smsbridge/internal/refdata"
	"github.com/yomakenya/smsbridge/internal/store"
)

// SentMessage is one outbound SMS recorded by the mock transport.
type SentMessage struct {
	To   string
	Body string
}

// MockMessagingService records outbound messages instead of sending them.
type MockMessagingService struct {
	mu       sync.Mutex
	Messages []SentMessage
	FailSend bool
}

func (m *MockMessagingService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	return recipient, nil
}

func (m *MockMessagingService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return errors.New("mock send failure")
	}
	m.Messages = append(m.Messages, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded outbound messages.
func (m *MockMessagingService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// StubRegistrar answers registration submissions with a canned outcome.
type StubRegistrar struct {
	mu        sync.Mutex
	Err       error
	Submitted []models.RegistrationRecord
}

func (r *StubRegistrar) CreateUser(ctx context.Context, rec models.RegistrationRecord) (*models.OnboardedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Submitted = append(r.Submitted, rec)
	if r.Err != nil {
		return nil, r.Err
	}
	return &models.OnboardedUser{
		ID:          "test-user-1",
		FirstName:   rec.FirstName,
		Surname:     rec.Surname,
		PhoneNumber: rec.PhoneNumber,
		CountryCode: rec.CountryCode,
	}, nil
}

// StubLookup serves fixed reference data lists.
type StubLookup struct{}

func (StubLookup) Lookup(ctx context.Context, category string) ([]models.ReferenceOption, error) {
	switch category {
	case refdata.CategoryGender:
		return []models.ReferenceOption{
			{ID: "g-female", Name: "Female"},
			{ID: "g-male", Name: "Male"},
		}, nil
	case refdata.CategoryEducation:
		return []models.ReferenceOption{
			{ID: "e-primary", Name: "Primary"},
			{ID: "e-secondary", Name: "Secondary"},
		}, nil
	default:
		return nil, models.ErrUnknownCategory
	}
}

// TestServer bundles a wired API server with its observable fakes.
type TestServer struct {
	Server    *api.Server
	Messaging *MockMessagingService
	Registrar *StubRegistrar
	Audit     *store.InMemoryStore
	Token     string
}

// NewTestServer creates an API server with in-memory dependencies.
// This centralizes the test server creation logic used across test files.
func NewTestServer(token string) *TestServer {
	msgService := &MockMessagingService{}
	registrar := &StubRegistrar{}
	audit := store.NewInMemoryStore()
	cache := refdata.NewCache(StubLookup{}, time.Hour)
	submitter := flow.NewSubmitter(registrar, audit, "KE")
	engine := flow.NewEngine(convstore.NewInMemoryStore(), cache, msgService, submitter, time.Second)

	return &TestServer{
		Server:    api.NewServer(engine, msgService, audit, token),
		Messaging: msgService,
		Registrar: registrar,
		Audit:     audit,
		Token:     token,
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONBody decodes a JSON response body into a generic map.
func AssertJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
