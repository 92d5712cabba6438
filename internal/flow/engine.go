// Package flow implements the registration dialogue state machine.
//
// The engine reconstructs a multi-turn dialogue from stateless webhook calls
// correlated only by phone number: each inbound message loads the sender's
// conversation, advances it one step (or re-prompts on invalid input), and
// emits the next outbound SMS. One question is asked per turn.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/models"
	"github.com/yomakenya/smsbridge/internal/refdata"
)

// Control keywords recognized in any stage (case-insensitive, trimmed).
const (
	keywordStart   = "start"
	keywordRestart = "restart"
)

// DefaultExternalTimeout bounds each external call made while holding the
// per-phone lock.
const DefaultExternalTimeout = 10 * time.Second

// Sender delivers an outbound SMS.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Result tells the webhook layer how to acknowledge the aggregator.
type Result struct {
	// Success is false when the dialogue step failed in a way worth
	// surfacing to the caller (duplicate account, provider failure).
	Success bool
	// Message is a short diagnostic for the acknowledgement body.
	Message string
	// Err is set for provider failures that should map to a server error.
	Err error
}

// Engine is the dialogue state machine. All state transitions for one phone
// number are serialized through a keyed mutex; messages from different phones
// proceed concurrently.
type Engine struct {
	store     convstore.Store
	locks     *convstore.KeyedMutex
	refdata   *refdata.Cache
	sender    Sender
	submitter *Submitter
	timeout   time.Duration
}

// NewEngine creates a dialogue engine. A non-positive timeout uses
// DefaultExternalTimeout.
func NewEngine(store convstore.Store, cache *refdata.Cache, sender Sender, submitter *Submitter, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	return &Engine{
		store:     store,
		locks:     convstore.NewKeyedMutex(),
		refdata:   cache,
		sender:    sender,
		submitter: submitter,
		timeout:   timeout,
	}
}

// ProcessMessage advances the sender's conversation by one inbound message.
// The phone number must already be normalized; it is both the conversation
// key and the SMS reply address.
func (e *Engine) ProcessMessage(ctx context.Context, phoneNumber, message string) Result {
	e.locks.Lock(phoneNumber)
	defer e.locks.Unlock(phoneNumber)

	input := strings.TrimSpace(message)
	keyword := strings.ToLower(input)

	if keyword == keywordRestart {
		if err := e.store.Delete(ctx, phoneNumber); err != nil {
			slog.Error("failed to delete conversation on restart", "error", err, "phone", phoneNumber)
		}
		slog.Info("conversation restarted", "phone", phoneNumber)
		return e.startConversation(ctx, phoneNumber)
	}

	conv, err := e.store.Get(ctx, phoneNumber)
	if err != nil {
		slog.Error("failed to load conversation", "error", err, "phone", phoneNumber)
		return Result{Success: false, Message: "Failed to load conversation state", Err: err}
	}

	if conv == nil {
		if keyword == keywordStart || input == "" {
			return e.startConversation(ctx, phoneNumber)
		}
		// First contact with real content: treat the message as the first
		// name rather than rejecting it silently. The welcome prompt is
		// skipped; the sender gets the surname prompt directly.
		conv, res := e.createConversation(ctx, phoneNumber)
		if conv == nil {
			return res
		}
		return e.advance(ctx, conv, input, keyword)
	}

	return e.advance(ctx, conv, input, keyword)
}

// startConversation creates a fresh conversation and sends the welcome
// prompt.
func (e *Engine) startConversation(ctx context.Context, phoneNumber string) Result {
	conv, res := e.createConversation(ctx, phoneNumber)
	if conv == nil {
		return res
	}
	e.send(ctx, phoneNumber, msgWelcome)
	return Result{Success: true, Message: "Welcome message sent"}
}

// createConversation persists a fresh conversation, binding the reference
// snapshot when the provider is reachable. Returns nil with a failure Result
// when the conversation could not be stored.
func (e *Engine) createConversation(ctx context.Context, phoneNumber string) (*models.Conversation, Result) {
	conv := models.NewConversation(phoneNumber)

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	genders, educations, err := e.refdata.Snapshot(fetchCtx)
	cancel()
	if err != nil {
		// Degraded start: the snapshot is late-bound at the first stage
		// that needs it.
		slog.Warn("starting conversation without reference snapshot", "error", err, "phone", phoneNumber)
	} else {
		conv.Genders = genders
		conv.Educations = educations
	}

	if err := e.store.Put(ctx, conv); err != nil {
		slog.Error("failed to create conversation", "error", err, "phone", phoneNumber)
		return nil, Result{Success: false, Message: "Failed to create conversation", Err: err}
	}

	slog.Info("conversation started", "phone", phoneNumber, "snapshot", conv.HasSnapshot())
	return conv, Result{Success: true, Message: "Conversation created"}
}

// advance runs one state machine step for an existing conversation.
func (e *Engine) advance(ctx context.Context, conv *models.Conversation, input, keyword string) Result {
	slog.Debug("advancing conversation", "phone", conv.Phone, "stage", conv.Stage)

	if !models.IsValidStage(conv.Stage) {
		// Corrupted or cross-version persisted state: reset rather than
		// strand the sender.
		slog.Error("conversation in unknown stage, restarting", "phone", conv.Phone, "stage", conv.Stage)
		if err := e.store.Delete(ctx, conv.Phone); err != nil {
			slog.Error("failed to delete conversation", "error", err, "phone", conv.Phone)
		}
		return e.startConversation(ctx, conv.Phone)
	}

	switch conv.Stage {
	case models.StageAwaitingFirstName:
		if keyword == keywordStart || input == "" {
			e.keepStage(ctx, conv)
			e.send(ctx, conv.Phone, msgWelcome)
			return Result{Success: true, Message: "Welcome message sent"}
		}
		conv.Answers[models.AnswerFirstName] = input
		return e.transition(ctx, conv, models.StageAwaitingSurname, msgAskSurname)

	case models.StageAwaitingSurname:
		if input == "" {
			e.keepStage(ctx, conv)
			e.send(ctx, conv.Phone, msgAskSurname)
			return Result{Success: true, Message: "Re-prompted for surname"}
		}
		conv.Answers[models.AnswerSurname] = input
		e.ensureSnapshot(ctx, conv)
		return e.transition(ctx, conv, models.StageAwaitingGender, withOptions(msgAskGender, conv.Genders))

	case models.StageAwaitingGender:
		e.ensureSnapshot(ctx, conv)
		id, ok := resolveOption(input, genderSynonyms, conv.Genders)
		if !ok {
			e.keepStage(ctx, conv)
			e.send(ctx, conv.Phone, withOptions(msgInvalidGender+" "+msgAskGender, conv.Genders))
			return Result{Success: true, Message: "Re-prompted for gender"}
		}
		conv.Answers[models.AnswerGenderID] = id
		return e.transition(ctx, conv, models.StageAwaitingEducation, withOptions(msgAskEducation, conv.Educations))

	case models.StageAwaitingEducation:
		e.ensureSnapshot(ctx, conv)
		id, ok := resolveOption(input, educationSynonyms, conv.Educations)
		if !ok {
			e.keepStage(ctx, conv)
			e.send(ctx, conv.Phone, withOptions(msgInvalidEducation+" "+msgAskEducation, conv.Educations))
			return Result{Success: true, Message: "Re-prompted for education"}
		}
		conv.Answers[models.AnswerEducationID] = id
		return e.submit(ctx, conv)

	default:
		// Unreachable: stages are validated above.
		return Result{Success: false, Message: "Unknown conversation stage"}
	}
}

// transition persists the next stage and sends its prompt. Failure to persist
// keeps the dialogue at its current stage so the user can resend.
func (e *Engine) transition(ctx context.Context, conv *models.Conversation, next models.Stage, prompt string) Result {
	from := conv.Stage
	conv.Stage = next
	conv.Touch()
	if err := e.store.Put(ctx, conv); err != nil {
		slog.Error("failed to persist stage transition", "error", err, "phone", conv.Phone, "from", from, "to", next)
		return Result{Success: false, Message: "Failed to save conversation state", Err: err}
	}
	slog.Info("conversation advanced", "phone", conv.Phone, "from", from, "to", next)
	e.send(ctx, conv.Phone, prompt)
	return Result{Success: true, Message: "Prompt sent"}
}

// submit runs the terminal registration step. The conversation is deleted on
// every outcome; a failed submission is not retried automatically.
func (e *Engine) submit(ctx context.Context, conv *models.Conversation) Result {
	submitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	userMessage, err := e.submitter.Submit(submitCtx, conv)
	cancel()

	e.send(ctx, conv.Phone, userMessage)

	if delErr := e.store.Delete(ctx, conv.Phone); delErr != nil {
		slog.Error("failed to delete completed conversation", "error", delErr, "phone", conv.Phone)
	}

	if err != nil {
		if errors.Is(err, models.ErrAlreadyRegistered) {
			return Result{Success: false, Message: "User already exists"}
		}
		return Result{Success: false, Message: "Error creating user", Err: err}
	}
	return Result{Success: true, Message: "User created successfully"}
}

// keepStage persists a conversation whose stage did not change, refreshing
// its idle timestamp and any late-bound snapshot.
func (e *Engine) keepStage(ctx context.Context, conv *models.Conversation) {
	conv.Touch()
	if err := e.store.Put(ctx, conv); err != nil {
		slog.Error("failed to persist conversation", "error", err, "phone", conv.Phone)
	}
}

// ensureSnapshot late-binds the reference snapshot for conversations created
// while the provider was unreachable. Once bound the snapshot is immutable.
func (e *Engine) ensureSnapshot(ctx context.Context, conv *models.Conversation) {
	if conv.HasSnapshot() {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	genders, educations, err := e.refdata.Snapshot(fetchCtx)
	if err != nil {
		slog.Warn("reference snapshot still unavailable", "error", err, "phone", conv.Phone)
		return
	}
	conv.Genders = genders
	conv.Educations = educations
	slog.Info("reference snapshot late-bound", "phone", conv.Phone)
}

// send delivers an outbound SMS, best-effort. Send failures never abort the
// dialogue step; the user can always resend their last message.
func (e *Engine) send(ctx context.Context, to, body string) {
	sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.sender.SendMessage(sendCtx, to, body); err != nil {
		slog.Error("failed to send SMS", "error", err, "to", to)
	}
}
