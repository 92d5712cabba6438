package flow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/models"
	"github.com/yomakenya/smsbridge/internal/refdata"
)

const testPhone = "+254722123456"

type engineFixture struct {
	engine    *Engine
	store     *convstore.InMemoryStore
	sender    *fakeSender
	registrar *fakeRegistrar
	audit     *fakeAudit
	lookup    *fakeLookup
}

func newEngineFixture() *engineFixture {
	store := convstore.NewInMemoryStore()
	sender := &fakeSender{}
	registrar := &fakeRegistrar{}
	audit := &fakeAudit{}
	lookup := &fakeLookup{}
	cache := refdata.NewCache(lookup, time.Hour)
	submitter := NewSubmitter(registrar, audit, "KE")
	return &engineFixture{
		engine:    NewEngine(store, cache, sender, submitter, time.Second),
		store:     store,
		sender:    sender,
		registrar: registrar,
		audit:     audit,
		lookup:    lookup,
	}
}

func (f *engineFixture) processAll(t *testing.T, messages ...string) Result {
	t.Helper()
	var res Result
	for _, m := range messages {
		res = f.engine.ProcessMessage(context.Background(), testPhone, m)
	}
	return res
}

func (f *engineFixture) stage(t *testing.T) models.Stage {
	t.Helper()
	conv, err := f.store.Get(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv == nil {
		t.Fatal("expected a conversation")
	}
	return conv.Stage
}

func TestFullRegistrationWalk(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	res := f.engine.ProcessMessage(ctx, testPhone, "start")
	if !res.Success {
		t.Fatalf("start failed: %+v", res)
	}
	if got := f.stage(t); got != models.StageAwaitingFirstName {
		t.Errorf("expected %s, got %s", models.StageAwaitingFirstName, got)
	}
	if f.sender.last().Body != msgWelcome {
		t.Errorf("expected welcome prompt, got %q", f.sender.last().Body)
	}

	f.engine.ProcessMessage(ctx, testPhone, "John")
	if got := f.stage(t); got != models.StageAwaitingSurname {
		t.Errorf("expected %s, got %s", models.StageAwaitingSurname, got)
	}
	conv, _ := f.store.Get(ctx, testPhone)
	if conv.Answers[models.AnswerFirstName] != "John" {
		t.Errorf("first name not stored: %v", conv.Answers)
	}

	f.engine.ProcessMessage(ctx, testPhone, "Doe")
	if got := f.stage(t); got != models.StageAwaitingGender {
		t.Errorf("expected %s, got %s", models.StageAwaitingGender, got)
	}
	if !strings.Contains(f.sender.last().Body, "Female") {
		t.Errorf("gender prompt missing options: %q", f.sender.last().Body)
	}

	f.engine.ProcessMessage(ctx, testPhone, "female")
	if got := f.stage(t); got != models.StageAwaitingEducation {
		t.Errorf("expected %s, got %s", models.StageAwaitingEducation, got)
	}

	res = f.engine.ProcessMessage(ctx, testPhone, "secondary")
	if !res.Success {
		t.Fatalf("submission failed: %+v", res)
	}

	rec, ok := f.registrar.lastSubmitted()
	if !ok {
		t.Fatal("no registration submitted")
	}
	if rec.FirstName != "John" || rec.Surname != "Doe" {
		t.Errorf("unexpected names: %+v", rec)
	}
	if rec.GenderID != "g-female" || rec.EducationID != "e-secondary" {
		t.Errorf("ids not resolved from snapshot: %+v", rec)
	}
	if rec.CountryCode != "KE" || rec.PhoneNumber != testPhone {
		t.Errorf("unexpected country/phone: %+v", rec)
	}

	if f.sender.last().Body != msgRegistered {
		t.Errorf("expected success message, got %q", f.sender.last().Body)
	}
	if conv, _ := f.store.Get(ctx, testPhone); conv != nil {
		t.Error("conversation not cleared after registration")
	}
	if len(f.audit.recorded) != 1 {
		t.Errorf("expected 1 audit record, got %d", len(f.audit.recorded))
	}
}

func TestSynonymsResolveEducation(t *testing.T) {
	cases := []struct {
		input  string
		wantID string
	}{
		{"high school", "e-secondary"},
		{"college", "e-tertiary"},
		{"University", "e-tertiary"},
		{"none", "e-none"},
		{"Primary school", "e-primary"},
		{"Tertiary", "e-tertiary"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			f := newEngineFixture()
			f.processAll(t, "start", "John", "Doe", "male", tc.input)
			rec, ok := f.registrar.lastSubmitted()
			if !ok {
				t.Fatalf("input %q did not trigger submission", tc.input)
			}
			if rec.EducationID != tc.wantID {
				t.Errorf("input %q resolved to %q, want %q", tc.input, rec.EducationID, tc.wantID)
			}
		})
	}
}

func TestInvalidGenderDoesNotAdvance(t *testing.T) {
	f := newEngineFixture()
	f.processAll(t, "start", "John", "Doe")

	before := f.sender.count()
	res := f.engine.ProcessMessage(context.Background(), testPhone, "Martian")
	if !res.Success {
		t.Errorf("validation failure should still acknowledge the webhook: %+v", res)
	}
	if got := f.stage(t); got != models.StageAwaitingGender {
		t.Errorf("stage advanced on invalid input: %s", got)
	}
	if f.sender.count() != before+1 {
		t.Error("expected a corrective prompt to be re-sent")
	}
	if !strings.Contains(f.sender.last().Body, "Female") {
		t.Errorf("corrective prompt missing option list: %q", f.sender.last().Body)
	}
}

func TestRestartIsUniversal(t *testing.T) {
	steps := [][]string{
		{"start"},
		{"start", "John"},
		{"start", "John", "Doe"},
		{"start", "John", "Doe", "female"},
	}
	for _, setup := range steps {
		f := newEngineFixture()
		f.processAll(t, setup...)

		res := f.engine.ProcessMessage(context.Background(), testPhone, "Restart")
		if !res.Success {
			t.Fatalf("restart failed after %v: %+v", setup, res)
		}
		conv, _ := f.store.Get(context.Background(), testPhone)
		if conv == nil {
			t.Fatal("restart should create a fresh conversation")
		}
		if conv.Stage != models.StageAwaitingFirstName {
			t.Errorf("restart after %v left stage %s", setup, conv.Stage)
		}
		if len(conv.Answers) != 0 {
			t.Errorf("restart after %v kept answers %v", setup, conv.Answers)
		}
	}
}

func TestFirstContactWithContentStoresFirstName(t *testing.T) {
	f := newEngineFixture()
	f.engine.ProcessMessage(context.Background(), testPhone, "John")

	conv, _ := f.store.Get(context.Background(), testPhone)
	if conv == nil {
		t.Fatal("expected conversation")
	}
	if conv.Stage != models.StageAwaitingSurname {
		t.Errorf("expected %s, got %s", models.StageAwaitingSurname, conv.Stage)
	}
	if conv.Answers[models.AnswerFirstName] != "John" {
		t.Errorf("first message not stored as first name: %v", conv.Answers)
	}
	// The sender answered already; no redundant welcome before the surname
	// prompt.
	if f.sender.count() != 1 {
		t.Errorf("expected exactly 1 outbound SMS, got %d", f.sender.count())
	}
	if f.sender.last().Body != msgAskSurname {
		t.Errorf("expected surname prompt, got %q", f.sender.last().Body)
	}
}

func TestGreetingIsStoredAsFirstName(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.engine.ProcessMessage(ctx, testPhone, "start")
	f.engine.ProcessMessage(ctx, testPhone, "Hi")

	conv, _ := f.store.Get(ctx, testPhone)
	if conv == nil {
		t.Fatal("expected conversation")
	}
	// Any non-empty text other than "start" is the first name, even if it
	// reads like a greeting.
	if conv.Stage != models.StageAwaitingSurname {
		t.Errorf("expected %s, got %s", models.StageAwaitingSurname, conv.Stage)
	}
	if conv.Answers[models.AnswerFirstName] != "Hi" {
		t.Errorf("greeting not stored as first name: %v", conv.Answers)
	}
}

func TestUnknownStageResetsConversation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	corrupted := models.NewConversation(testPhone)
	corrupted.Stage = models.Stage("AWAITING_QUEST")
	if err := f.store.Put(ctx, corrupted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := f.engine.ProcessMessage(ctx, testPhone, "John")
	if !res.Success {
		t.Fatalf("reset failed: %+v", res)
	}
	conv, _ := f.store.Get(ctx, testPhone)
	if conv == nil {
		t.Fatal("expected a fresh conversation")
	}
	if conv.Stage != models.StageAwaitingFirstName {
		t.Errorf("expected %s after reset, got %s", models.StageAwaitingFirstName, conv.Stage)
	}
	if f.sender.last().Body != msgWelcome {
		t.Errorf("expected welcome after reset, got %q", f.sender.last().Body)
	}
}

func TestDegradedStartLateBindsSnapshot(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.lookup.setFailing(true)
	f.engine.ProcessMessage(ctx, testPhone, "start")
	conv, _ := f.store.Get(ctx, testPhone)
	if conv.HasSnapshot() {
		t.Fatal("expected degraded start without snapshot")
	}

	f.engine.ProcessMessage(ctx, testPhone, "John")

	// Provider recovers before the gender stage.
	f.lookup.setFailing(false)
	f.engine.ProcessMessage(ctx, testPhone, "Doe")
	conv, _ = f.store.Get(ctx, testPhone)
	if !conv.HasSnapshot() {
		t.Fatal("snapshot not late-bound after provider recovery")
	}
	if !strings.Contains(f.sender.last().Body, "Female") {
		t.Errorf("gender prompt should list late-bound options: %q", f.sender.last().Body)
	}
}

func TestDegradedGenderPromptWithoutSnapshot(t *testing.T) {
	f := newEngineFixture()

	f.lookup.setFailing(true)
	f.processAll(t, "start", "John", "Doe")

	if got := f.sender.last().Body; got != msgAskGender {
		t.Errorf("expected reduced prompt without options, got %q", got)
	}
	if got := f.stage(t); got != models.StageAwaitingGender {
		t.Errorf("expected %s, got %s", models.StageAwaitingGender, got)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	f := newEngineFixture()
	f.registrar.err = models.ErrAlreadyRegistered

	res := f.processAll(t, "start", "John", "Doe", "female", "secondary")
	if res.Success {
		t.Error("duplicate registration should not report success")
	}
	if res.Err != nil {
		t.Errorf("duplicate is not a system fault: %v", res.Err)
	}
	if f.sender.last().Body != msgAlreadyRegistered {
		t.Errorf("expected already-registered message, got %q", f.sender.last().Body)
	}
	if conv, _ := f.store.Get(context.Background(), testPhone); conv != nil {
		t.Error("conversation should be cleared after duplicate")
	}
}

func TestProviderFailureEndsConversation(t *testing.T) {
	f := newEngineFixture()
	f.registrar.err = context.DeadlineExceeded

	res := f.processAll(t, "start", "John", "Doe", "female", "secondary")
	if res.Success || res.Err == nil {
		t.Errorf("expected failed result with error, got %+v", res)
	}
	if f.sender.last().Body != msgRegistrationError {
		t.Errorf("expected apology message, got %q", f.sender.last().Body)
	}
	if conv, _ := f.store.Get(context.Background(), testPhone); conv != nil {
		t.Error("conversation should be cleared; no automatic retry")
	}
}

func TestDeterministicPrompts(t *testing.T) {
	inputs := []string{"start", "John", "Doe", "female", "secondary"}
	runs := make([][]sentMessage, 2)
	for i := range runs {
		f := newEngineFixture()
		f.processAll(t, inputs...)
		f.sender.mu.Lock()
		runs[i] = append([]sentMessage(nil), f.sender.sent...)
		f.sender.mu.Unlock()
	}
	if len(runs[0]) != len(runs[1]) {
		t.Fatalf("runs sent different message counts: %d vs %d", len(runs[0]), len(runs[1]))
	}
	for i := range runs[0] {
		if runs[0][i] != runs[1][i] {
			t.Errorf("message %d differs: %q vs %q", i, runs[0][i].Body, runs[1][i].Body)
		}
	}
}

func TestConcurrentSendersDoNotInterfere(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	phones := []string{"+254700000001", "+254700000002", "+254700000003"}

	var wg sync.WaitGroup
	for _, p := range phones {
		wg.Add(1)
		go func(phoneNumber string) {
			defer wg.Done()
			for _, m := range []string{"start", "John", "Doe"} {
				f.engine.ProcessMessage(ctx, phoneNumber, m)
			}
		}(p)
	}
	wg.Wait()

	for _, p := range phones {
		conv, err := f.store.Get(ctx, p)
		if err != nil || conv == nil {
			t.Fatalf("missing conversation for %s: %v", p, err)
		}
		if conv.Stage != models.StageAwaitingGender {
			t.Errorf("conversation %s at %s, want %s", p, conv.Stage, models.StageAwaitingGender)
		}
		if conv.Answers[models.AnswerFirstName] != "John" {
			t.Errorf("conversation %s answers corrupted: %v", p, conv.Answers)
		}
	}
}

func TestSamePhoneMessagesApplyAsSequence(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.engine.ProcessMessage(ctx, testPhone, "start")

	// Two near-simultaneous answers from the same sender must each advance
	// exactly one stage, never both from the same starting stage.
	var wg sync.WaitGroup
	for _, m := range []string{"John", "Doe"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			f.engine.ProcessMessage(ctx, testPhone, msg)
		}(m)
	}
	wg.Wait()

	conv, _ := f.store.Get(ctx, testPhone)
	if conv == nil {
		t.Fatal("expected conversation")
	}
	if conv.Stage != models.StageAwaitingGender {
		t.Errorf("expected %s after two answers, got %s", models.StageAwaitingGender, conv.Stage)
	}
	first := conv.Answers[models.AnswerFirstName]
	surname := conv.Answers[models.AnswerSurname]
	ordered := first == "John" && surname == "Doe"
	reversed := first == "Doe" && surname == "John"
	if !ordered && !reversed {
		t.Errorf("messages not applied as a strict sequence: first=%q surname=%q", first, surname)
	}
}

func TestSendFailureDoesNotBlockDialogue(t *testing.T) {
	f := newEngineFixture()
	f.sender.fail = true

	res := f.engine.ProcessMessage(context.Background(), testPhone, "start")
	if !res.Success {
		t.Errorf("send failure should not fail the dialogue step: %+v", res)
	}
	if got := f.stage(t); got != models.StageAwaitingFirstName {
		t.Errorf("unexpected stage: %s", got)
	}
}
