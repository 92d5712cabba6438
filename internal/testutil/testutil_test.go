package testutil

import (
	"context"
	"testing"
)

func TestNewTestServer(t *testing.T) {
	ts := NewTestServer("secret")
	if ts == nil || ts.Server == nil {
		t.Fatal("NewTestServer returned incomplete fixture")
	}
	if ts.Messaging == nil || ts.Registrar == nil || ts.Audit == nil {
		t.Error("expected all fakes to be wired")
	}
}

func TestMockMessagingServiceRecordsSends(t *testing.T) {
	m := &MockMessagingService{}
	if err := m.SendMessage(context.Background(), "+254722123456", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := m.Sent()
	if len(sent) != 1 || sent[0].To != "+254722123456" || sent[0].Body != "hello" {
		t.Errorf("message not recorded: %v", sent)
	}

	m.FailSend = true
	if err := m.SendMessage(context.Background(), "+254722123456", "again"); err == nil {
		t.Error("expected send failure")
	}
}

func TestMockMessagingServiceRejectsEmptyRecipient(t *testing.T) {
	m := &MockMessagingService{}
	if _, err := m.ValidateAndCanonicalizeRecipient(""); err == nil {
		t.Error("expected error for empty recipient")
	}
	got, err := m.ValidateAndCanonicalizeRecipient("+254722123456")
	if err != nil || got != "+254722123456" {
		t.Errorf("unexpected canonicalization: %q, %v", got, err)
	}
}
