// Package engine runs one adaptive symptom interview.
//
// The engine owns the response ledger and moves through the states
// initializing, questioning, generating and then one of completed, emergency
// or error. After every answer it screens for emergencies, checks completion
// and asks the generator for the next question, in that order. All generator
// calls go through a single-flight coordinator; results that arrive after the
// ledger changed underneath them are dropped without effect.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"symptomcheck/internal/flight"
	"symptomcheck/internal/ledger"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
)

// Generator produces questions. A nil question from GenerateNextQuestion means
// there is nothing more to ask.
type Generator interface {
	GenerateInitialQuestion(ctx context.Context, locale string) (*model.Question, error)
	GenerateNextQuestion(ctx context.Context, responses []model.QuestionResponse, questionIndex int, locale string) (*model.Question, error)
	GenerateEmergencyQuestion(ctx context.Context, locale string) (*model.Question, error)
	NeedsEmergencyScreen(ctx context.Context, responses []model.QuestionResponse) (bool, error)
}

// Result is handed to the terminal callbacks
type Result struct {
	Session   model.Session
	History   []model.Question
	Responses []model.QuestionResponse
}

// Config wires an engine. Zero fields take defaults.
type Config struct {
	Rules  policy.Rules
	Locale string

	// Opener is the question a seed answers when Start is given one
	Opener model.Question

	OnComplete          func(ctx context.Context, res Result)
	OnEmergencyDetected func(ctx context.Context, res Result)

	// OnChange receives a snapshot after every state transition. It is
	// called without the engine lock held.
	OnChange func(snap model.Snapshot)

	Now   func() time.Time
	NewID func() string
}

// DefaultOpener asks for the primary concern
func DefaultOpener(id string) model.Question {
	return model.Question{
		ID:   id,
		Text: "What is your main health concern today?",
		Kind: model.KindTextInput,
	}
}

type phase struct {
	op       string
	nextKey  flight.Key
	failKind Kind
}

var (
	phaseStart  = phase{op: "start", nextKey: flight.KeyGenerateInitial, failKind: KindStartupFailure}
	phaseSubmit = phase{op: "submit", nextKey: flight.KeyGenerateNext, failKind: KindGenerationFailure}
)

// ticket pins an asynchronous step to the ledger it was computed from
type ticket struct {
	l      *ledger.Ledger
	rev    uint64
	locale string
}

// Engine is safe for concurrent use. Its lock is never held across a
// generator call.
type Engine struct {
	gen        Generator
	cfg        Config
	flight     *flight.Coordinator
	screener   *policy.Screener
	completion policy.Completion

	mu        sync.Mutex
	session   model.Session
	ledger    *ledger.Ledger
	state     model.State
	failure   *Error
	pipelines int
	closed    bool

	// version counts published transitions
	version uint64
}

// New creates an engine in the initializing state. Call Start to begin.
func New(gen Generator, cfg Config) (*Engine, error) {
	if gen == nil {
		return nil, errors.New("engine: generator is required")
	}
	if cfg.Rules.Completion.PrimaryConcernID == "" {
		cfg.Rules = policy.DefaultRules()
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid policy: %w", err)
	}
	if cfg.Opener.ID == "" {
		cfg.Opener = DefaultOpener(cfg.Rules.Completion.PrimaryConcernID)
	}
	if cfg.Opener.ID != cfg.Rules.Completion.PrimaryConcernID {
		return nil, fmt.Errorf("engine: opener id %q must be the primary concern id %q", cfg.Opener.ID, cfg.Rules.Completion.PrimaryConcernID)
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	e := &Engine{
		gen:        gen,
		cfg:        cfg,
		flight:     flight.New(),
		screener:   policy.NewScreener(cfg.Rules.Emergency),
		completion: policy.NewCompletion(cfg.Rules.Completion),
	}
	e.resetLocked("")
	return e, nil
}

// Start begins a new session, discarding any current one. A non-empty seed
// is recorded as the answer to the opener and the interview continues from
// there.
func (e *Engine) Start(ctx context.Context, seed string) error {
	seed = strings.TrimSpace(seed)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == model.StateInitializing && e.session.Seed == seed && e.flight.Busy() {
		e.mu.Unlock()
		return duplicate(phaseStart.op)
	}
	e.flight.Cancel()
	e.resetLocked(seed)

	if seed != "" {
		r := model.QuestionResponse{
			QuestionID: e.cfg.Opener.ID,
			Answer:     model.TextAnswer(seed),
			Timestamp:  e.cfg.Now(),
		}
		if err := e.ledger.Append(e.cfg.Opener, r); err != nil {
			e.mu.Unlock()
			return e.invariant(phaseStart.op, err)
		}
	}
	t := e.ticketLocked()
	responses := e.ledger.Responses()
	screened := e.ledger.Shown(e.screener.QuestionID())
	e.pipelines++
	snap := e.changedLocked()
	e.mu.Unlock()
	defer e.pipelineDone()

	log.Printf("[Engine] Session %s: starting (seeded=%t, locale=%s)", snap.SessionID, seed != "", t.locale)
	e.notify(snap)

	if seed == "" {
		var q *model.Question
		err := e.request(ctx, t, phaseStart, flight.KeyGenerateInitial, func(ctx context.Context) error {
			var err error
			q, err = e.gen.GenerateInitialQuestion(ctx, t.locale)
			return err
		})
		if err == nil {
			err = e.checkQuestion(q, false)
		}
		if err != nil {
			return e.fail(t, phaseStart, err)
		}
		return e.show(t, phaseStart, q)
	}
	return e.advance(ctx, t, phaseStart, responses, screened)
}

// SubmitAnswer records the answer to the current question and moves on
func (e *Engine) SubmitAnswer(ctx context.Context, r model.QuestionResponse) error {
	const op = "submit"

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	switch e.state {
	case model.StateQuestioning:
	case model.StateGenerating:
		e.mu.Unlock()
		return duplicate(op)
	default:
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%s in state %s: %w", op, state, ErrInvalidState)
	}

	cur := e.ledger.Current()
	if cur == nil {
		e.mu.Unlock()
		return e.invariant(op, ledger.ErrNoCurrentQuestion)
	}
	if r.QuestionID != cur.ID {
		e.mu.Unlock()
		return fmt.Errorf("%w: answer is for %q but the current question is %q", ErrInvalidAnswer, r.QuestionID, cur.ID)
	}
	if err := cur.ValidateAnswer(r.Answer); err != nil {
		e.mu.Unlock()
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = e.cfg.Now()
	}
	if err := e.ledger.Answer(r); err != nil {
		e.mu.Unlock()
		return e.invariant(op, err)
	}

	// anything still outstanding was computed before a go-back
	e.flight.Cancel()
	e.state = model.StateGenerating
	t := e.ticketLocked()
	responses := e.ledger.Responses()
	screened := e.ledger.Shown(e.screener.QuestionID())
	e.pipelines++
	snap := e.changedLocked()
	e.mu.Unlock()
	defer e.pipelineDone()

	e.notify(snap)
	return e.advance(ctx, t, phaseSubmit, responses, screened)
}

// GoBack undoes the most recent answer. It never cancels or issues a
// generator request; anything outstanding is left to be dropped as stale.
func (e *Engine) GoBack() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state != model.StateQuestioning && e.state != model.StateGenerating {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("go back in state %s: %w", state, ErrInvalidState)
	}
	if !e.ledger.TruncateLast() {
		e.mu.Unlock()
		return ErrCannotGoBack
	}
	e.state = model.StateQuestioning
	snap := e.changedLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// Retry recovers from the error state. After a failed generation the last
// answer is retracted and returned so the caller can offer it for
// re-submission; after a failed start the start is repeated with the same
// seed. Retry is also accepted while generating when nothing is in progress,
// which happens when a caller abandoned a submission.
func (e *Engine) Retry(ctx context.Context) (*model.QuestionResponse, error) {
	const op = "retry"

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}

	if e.state == model.StateError && e.failure != nil && e.failure.Kind == KindStartupFailure {
		seed := e.session.Seed
		e.mu.Unlock()
		return nil, e.Start(ctx, seed)
	}

	if e.state != model.StateError && (e.state != model.StateGenerating || e.pipelines > 0) {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("%s in state %s: %w", op, state, ErrInvalidState)
	}

	var retracted *model.QuestionResponse
	if r, ok := e.ledger.Retract(); ok {
		retracted = &r
	}
	if e.ledger.Current() == nil {
		e.mu.Unlock()
		return nil, e.invariant(op, ledger.ErrNoCurrentQuestion)
	}
	e.flight.Cancel()
	e.state = model.StateQuestioning
	e.failure = nil
	snap := e.changedLocked()
	e.mu.Unlock()

	e.notify(snap)
	return retracted, nil
}

// Restart discards the session and starts over with the same seed
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	seed := e.session.Seed
	e.mu.Unlock()
	return e.Start(ctx, seed)
}

// Snapshot returns the current observable state
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Locale is the locale of the current session
func (e *Engine) Locale() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Locale
}

// Close tears the engine down. Results arriving afterwards have no effect.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.flight.Close()
}

// advance runs the post-answer pipeline against a fixed copy of the responses
func (e *Engine) advance(ctx context.Context, t ticket, ph phase, responses []model.QuestionResponse, screened bool) error {
	last := responses[len(responses)-1]
	if last.QuestionID == e.screener.QuestionID() && e.screener.IsEmergencyEscalation(&last) {
		return e.finish(ctx, t, ph, model.StateEmergency)
	}

	if !screened {
		var needs bool
		err := e.request(ctx, t, ph, flight.KeyCheckEmergency, func(ctx context.Context) error {
			var err error
			needs, err = e.gen.NeedsEmergencyScreen(ctx, model.CloneResponses(responses))
			return err
		})
		if err != nil {
			return e.fail(t, ph, err)
		}
		if needs {
			var q *model.Question
			err := e.request(ctx, t, ph, flight.KeyGenerateEmergency, func(ctx context.Context) error {
				var err error
				q, err = e.gen.GenerateEmergencyQuestion(ctx, t.locale)
				return err
			})
			if err == nil {
				err = e.checkQuestion(q, true)
			}
			if err != nil {
				return e.fail(t, ph, err)
			}
			return e.show(t, ph, q)
		}
	}

	if e.completion.Exhausted(responses) || e.completion.IsComplete(responses) {
		return e.finish(ctx, t, ph, model.StateCompleted)
	}

	var q *model.Question
	err := e.request(ctx, t, ph, ph.nextKey, func(ctx context.Context) error {
		var err error
		q, err = e.gen.GenerateNextQuestion(ctx, model.CloneResponses(responses), len(responses), t.locale)
		return err
	})
	if err != nil {
		return e.fail(t, ph, err)
	}
	if q == nil {
		return e.finish(ctx, t, ph, model.StateCompleted)
	}
	if err := e.checkQuestion(q, false); err != nil {
		return e.fail(t, ph, err)
	}
	return e.show(t, ph, q)
}

// request registers key with the coordinator only if t is still current, so
// a stale pipeline can never supersede a live one
func (e *Engine) request(ctx context.Context, t ticket, ph phase, key flight.Key, call func(ctx context.Context) error) error {
	e.mu.Lock()
	if !e.validLocked(t) {
		e.mu.Unlock()
		return cancelled(ph.op)
	}
	req, err := e.flight.Begin(ctx, key)
	e.mu.Unlock()

	switch {
	case errors.Is(err, flight.ErrDuplicateRequest):
		return duplicate(ph.op)
	case errors.Is(err, flight.ErrClosed):
		return cancelled(ph.op)
	case err != nil:
		return err
	}
	return req.Finish(call(req.Context()))
}

func (e *Engine) checkQuestion(q *model.Question, emergency bool) error {
	if q == nil {
		return errors.New("generator returned no question")
	}
	if err := q.Validate(); err != nil {
		return err
	}
	if emergency && q.ID != e.screener.QuestionID() {
		return fmt.Errorf("emergency question has id %q, want %q", q.ID, e.screener.QuestionID())
	}
	return nil
}

func (e *Engine) show(t ticket, ph phase, q *model.Question) error {
	e.mu.Lock()
	if !e.validLocked(t) {
		e.mu.Unlock()
		return cancelled(ph.op)
	}
	if err := e.ledger.Show(*q); err != nil {
		e.mu.Unlock()
		return e.fail(t, ph, err)
	}
	e.state = model.StateQuestioning
	e.failure = nil
	snap := e.changedLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

func (e *Engine) finish(ctx context.Context, t ticket, ph phase, state model.State) error {
	e.mu.Lock()
	if !e.validLocked(t) {
		e.mu.Unlock()
		return cancelled(ph.op)
	}
	e.state = state
	if state == model.StateCompleted {
		e.session.Completed = true
	}
	res := Result{
		Session:   e.session,
		History:   e.ledger.History(),
		Responses: e.ledger.Responses(),
	}
	snap := e.changedLocked()
	e.mu.Unlock()

	log.Printf("[Engine] Session %s: %s after %d responses", res.Session.ID, state, len(res.Responses))
	e.notify(snap)

	switch state {
	case model.StateCompleted:
		if e.cfg.OnComplete != nil {
			e.cfg.OnComplete(ctx, res)
		}
	case model.StateEmergency:
		if e.cfg.OnEmergencyDetected != nil {
			e.cfg.OnEmergencyDetected(ctx, res)
		}
	}
	return nil
}

// fail moves to the error state unless the result is stale. A cancelled
// generation that was not superseded leaves the state alone; a cancelled
// start is a startup failure.
func (e *Engine) fail(t ticket, ph phase, err error) error {
	e.mu.Lock()
	if !e.validLocked(t) {
		e.mu.Unlock()
		return cancelled(ph.op)
	}
	switch KindOf(err) {
	case KindDuplicateRequest:
		e.mu.Unlock()
		return err
	case KindCancelled:
		if ph.failKind != KindStartupFailure {
			e.mu.Unlock()
			return cancelled(ph.op)
		}
	}

	e.state = model.StateError
	e.failure = &Error{Kind: ph.failKind, Op: ph.op, Err: err}
	failure := e.failure
	snap := e.changedLocked()
	e.mu.Unlock()

	log.Printf("[Engine] Session %s: %v", snap.SessionID, failure)
	e.notify(snap)
	return failure
}

func (e *Engine) invariant(op string, err error) error {
	log.Printf("[Engine] INVARIANT VIOLATION in %s: %v", op, err)
	return &Error{Kind: KindInvariantViolation, Op: op, Err: err}
}

func (e *Engine) pipelineDone() {
	e.mu.Lock()
	e.pipelines--
	e.mu.Unlock()
}

func (e *Engine) resetLocked(seed string) {
	e.ledger = ledger.New()
	e.session = model.Session{
		ID:        e.cfg.NewID(),
		Locale:    e.cfg.Locale,
		Seed:      seed,
		StartedAt: e.cfg.Now(),
	}
	e.state = model.StateInitializing
	e.failure = nil
}

func (e *Engine) ticketLocked() ticket {
	return ticket{l: e.ledger, rev: e.ledger.Revision(), locale: e.session.Locale}
}

func (e *Engine) validLocked(t ticket) bool {
	return !e.closed && e.ledger == t.l && t.l.Revision() == t.rev
}

func (e *Engine) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		SessionID:       e.session.ID,
		Version:         e.version,
		State:           e.state,
		CurrentQuestion: e.ledger.Current(),
		QuestionNumber:  e.ledger.Len(),
		CanGoBack:       (e.state == model.StateQuestioning || e.state == model.StateGenerating) && e.ledger.Len() > 1,
		Responses:       e.ledger.Responses(),
		History:         e.ledger.History(),
		StartedAt:       e.session.StartedAt,
		Completed:       e.session.Completed,
	}
	if e.failure != nil {
		snap.Error = &model.ErrorInfo{Kind: e.failure.Kind.String(), Message: e.failure.Kind.Message()}
	}
	return snap
}

// changedLocked records a transition and returns the snapshot to publish
func (e *Engine) changedLocked() model.Snapshot {
	e.version++
	return e.snapshotLocked()
}

func (e *Engine) notify(snap model.Snapshot) {
	if e.cfg.OnChange != nil {
		e.cfg.OnChange(snap)
	}
}
