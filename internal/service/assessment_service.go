package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"symptomcheck/internal/cache"
	"symptomcheck/internal/engine"
	"symptomcheck/internal/jobs"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
	"symptomcheck/internal/repository"
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrQuestionNotCurrent = errors.New("question is not the current question")
	ErrNoGeneratedOptions = errors.New("question has no generated options")
)

// QuestionGenerator is the generation service seen by assessments
type QuestionGenerator interface {
	engine.Generator
	GenerateOptions(ctx context.Context, question *model.Question, responses []model.QuestionResponse, locale string) ([]model.Option, error)
}

var _ QuestionGenerator = (*GeneratorService)(nil)

// Enqueuer is satisfied by *asynq.Client
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Persister writes a finished assessment synchronously
type Persister interface {
	Persist(ctx context.Context, record *model.AssessmentRecord) error
}

var _ Persister = (*jobs.Handler)(nil)

// cacheTimeout bounds the cache writes made from engine callbacks, which
// carry no request context
const cacheTimeout = 2 * time.Second

// AssessmentService owns the live interview engines, one per assessment
type AssessmentService struct {
	gen          QuestionGenerator
	rules        policy.Rules
	locale       string
	authSvc      *AuthService
	sessionCache cache.SessionCache
	optionsCache cache.OptionsCache
	stats        cache.StatsCache
	repo         repository.AssessmentRepo
	persister    Persister
	broadcaster  Broadcaster
	queue        Enqueuer

	mu      sync.RWMutex
	engines map[string]*engine.Engine
}

// NewAssessmentService creates a new assessment service. Finished
// assessments are written through persister until UseQueue is called.
func NewAssessmentService(
	gen QuestionGenerator,
	rules policy.Rules,
	defaultLocale string,
	authSvc *AuthService,
	sessionCache cache.SessionCache,
	optionsCache cache.OptionsCache,
	stats cache.StatsCache,
	repo repository.AssessmentRepo,
	persister Persister,
	broadcaster Broadcaster,
) *AssessmentService {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &AssessmentService{
		gen:          gen,
		rules:        rules,
		locale:       defaultLocale,
		authSvc:      authSvc,
		sessionCache: sessionCache,
		optionsCache: optionsCache,
		stats:        stats,
		repo:         repo,
		persister:    persister,
		broadcaster:  broadcaster,
		engines:      make(map[string]*engine.Engine),
	}
}

// UseQueue routes finished assessments through the task queue
func (s *AssessmentService) UseQueue(q Enqueuer) {
	s.queue = q
}

// Start creates an assessment and runs its engine up to the first question.
// A startup failure is not an error here: it shows in the snapshot and the
// client can retry.
func (s *AssessmentService) Start(ctx context.Context, req *model.StartAssessmentRequest) (*model.StartAssessmentResponse, error) {
	id := uuid.NewString()
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = s.locale
	}

	eng, err := engine.New(s.gen, engine.Config{
		Rules:               s.rules,
		Locale:              locale,
		OnComplete:          s.onTerminal(id, model.OutcomeCompleted),
		OnEmergencyDetected: s.onTerminal(id, model.OutcomeEmergency),
		OnChange:            s.onChange(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	token, err := s.authSvc.GeneratePatientToken(id)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	s.engines[id] = eng
	s.mu.Unlock()

	log.Printf("[Assessment] %s started (locale %s, seeded %t)", id, locale, req.Seed != "")

	if err := eng.Start(context.WithoutCancel(ctx), req.Seed); err != nil && !surfaced(err) {
		s.drop(id)
		return nil, err
	}

	snap := eng.Snapshot()
	return &model.StartAssessmentResponse{
		AssessmentID: id,
		Token:        token,
		Snapshot:     &snap,
	}, nil
}

// Get returns the latest snapshot. Assessments no longer held in memory are
// served from the snapshot cache.
func (s *AssessmentService) Get(ctx context.Context, id string) (*model.Snapshot, error) {
	if eng := s.engine(id); eng != nil {
		snap := eng.Snapshot()
		return &snap, nil
	}

	snap, err := s.sessionCache.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if snap == nil {
		return nil, ErrAssessmentNotFound
	}
	return snap, nil
}

// Submit answers the current question and waits for the next one
func (s *AssessmentService) Submit(ctx context.Context, id string, req *model.SubmitAnswerRequest) (*model.Snapshot, error) {
	eng := s.engine(id)
	if eng == nil {
		return nil, ErrAssessmentNotFound
	}

	err := eng.SubmitAnswer(context.WithoutCancel(ctx), model.QuestionResponse{
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
	})
	return s.result(eng, err)
}

// Back re-opens the previous question
func (s *AssessmentService) Back(ctx context.Context, id string) (*model.Snapshot, error) {
	eng := s.engine(id)
	if eng == nil {
		return nil, ErrAssessmentNotFound
	}
	return s.result(eng, eng.GoBack())
}

// Retry recovers from the error state. The retracted answer, if any, is
// returned so the client can pre-fill it.
func (s *AssessmentService) Retry(ctx context.Context, id string) (*model.RetryResponse, error) {
	eng := s.engine(id)
	if eng == nil {
		return nil, ErrAssessmentNotFound
	}

	retracted, err := eng.Retry(context.WithoutCancel(ctx))
	snap, err := s.result(eng, err)
	if err != nil {
		return nil, err
	}
	return &model.RetryResponse{Snapshot: snap, Retracted: retracted}, nil
}

// Restart starts the assessment over with the same seed
func (s *AssessmentService) Restart(ctx context.Context, id string) (*model.Snapshot, error) {
	eng := s.engine(id)
	if eng == nil {
		return nil, ErrAssessmentNotFound
	}

	if err := s.optionsCache.DeleteAll(ctx, id); err != nil {
		log.Printf("[Assessment] Failed to clear options for %s: %v", id, err)
	}
	return s.result(eng, eng.Restart(context.WithoutCancel(ctx)))
}

// Discard tears an assessment down. Results still in flight are dropped.
func (s *AssessmentService) Discard(ctx context.Context, id string) error {
	if !s.drop(id) {
		return ErrAssessmentNotFound
	}

	if err := s.sessionCache.Delete(ctx, id); err != nil {
		log.Printf("[Assessment] Failed to delete snapshot for %s: %v", id, err)
	}
	if err := s.optionsCache.DeleteAll(ctx, id); err != nil {
		log.Printf("[Assessment] Failed to clear options for %s: %v", id, err)
	}
	s.broadcaster.Disconnect(id)

	log.Printf("[Assessment] %s discarded", id)
	return nil
}

// Options returns the answer options of a generated choice question. They
// are produced on first request and cached.
func (s *AssessmentService) Options(ctx context.Context, id, questionID string) ([]model.Option, error) {
	eng := s.engine(id)
	if eng == nil {
		return nil, ErrAssessmentNotFound
	}

	snap := eng.Snapshot()
	q := snap.CurrentQuestion
	if q == nil || q.ID != questionID {
		return nil, ErrQuestionNotCurrent
	}
	if !q.Kind.Generated() && len(q.Options) > 0 {
		return q.Options, nil
	}
	if q.Kind != model.KindGeneratedSingleChoice && q.Kind != model.KindGeneratedMultipleChoice {
		return nil, ErrNoGeneratedOptions
	}

	cached, err := s.optionsCache.GetOptions(ctx, id, questionID)
	if err != nil {
		log.Printf("[Assessment] Options cache read failed for %s/%s: %v", id, questionID, err)
	}
	if len(cached) > 0 {
		return cached, nil
	}

	opts, err := s.gen.GenerateOptions(ctx, q, snap.Responses, eng.Locale())
	if err != nil {
		return nil, fmt.Errorf("failed to generate options: %w", err)
	}
	if err := s.optionsCache.SetOptions(ctx, id, questionID, opts); err != nil {
		log.Printf("[Assessment] Failed to cache options for %s/%s: %v", id, questionID, err)
	}
	return opts, nil
}

// Record returns the stored ledger of a finished assessment
func (s *AssessmentService) Record(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if record == nil {
		return nil, ErrAssessmentNotFound
	}
	return record, nil
}

// Stats returns outcome counters across all assessments
func (s *AssessmentService) Stats(ctx context.Context) (*model.OutcomeStats, error) {
	return s.stats.GetStats(ctx)
}

// Shutdown closes every engine
func (s *AssessmentService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, eng := range s.engines {
		eng.Close()
		delete(s.engines, id)
	}
}

// onChange mirrors every transition to the cache and the websocket hub.
// Transitions can race to get here, so a snapshot older than the last one
// published is dropped.
func (s *AssessmentService) onChange(id string) func(model.Snapshot) {
	var (
		mu   sync.Mutex
		last uint64
	)
	return func(snap model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version <= last {
			return
		}
		last = snap.Version

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		if err := s.sessionCache.SetSnapshot(ctx, id, &snap); err != nil {
			log.Printf("[Assessment] Failed to cache snapshot for %s: %v", id, err)
		}
		s.broadcaster.BroadcastSnapshot(id, &snap)
	}
}

// onTerminal hands a finished ledger to storage
func (s *AssessmentService) onTerminal(id string, outcome model.Outcome) func(context.Context, engine.Result) {
	return func(ctx context.Context, res engine.Result) {
		record := &model.AssessmentRecord{
			ID:         id,
			SessionID:  res.Session.ID,
			Outcome:    outcome,
			Locale:     res.Session.Locale,
			Seed:       res.Session.Seed,
			History:    res.History,
			Responses:  res.Responses,
			StartedAt:  res.Session.StartedAt,
			FinishedAt: time.Now(),
		}

		if s.queue != nil {
			err := s.enqueue(record)
			if err == nil || errors.Is(err, asynq.ErrTaskIDConflict) {
				return
			}
			log.Printf("[Assessment] Enqueue failed for %s, writing directly: %v", id, err)
		}

		if err := s.persister.Persist(ctx, record); err != nil {
			log.Printf("[Assessment] Failed to persist %s: %v", id, err)
		}
	}
}

func (s *AssessmentService) enqueue(record *model.AssessmentRecord) error {
	task, err := jobs.NewPersistAssessmentTask(record)
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(task)
	return err
}

func (s *AssessmentService) engine(id string) *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines[id]
}

func (s *AssessmentService) drop(id string) bool {
	s.mu.Lock()
	eng, ok := s.engines[id]
	delete(s.engines, id)
	s.mu.Unlock()
	if ok {
		eng.Close()
	}
	return ok
}

// result pairs an engine outcome with the snapshot it left behind
func (s *AssessmentService) result(eng *engine.Engine, err error) (*model.Snapshot, error) {
	if err != nil && !surfaced(err) {
		return nil, err
	}
	snap := eng.Snapshot()
	return &snap, nil
}

// surfaced reports whether err is already visible in the snapshot as the
// error state
func surfaced(err error) bool {
	switch engine.KindOf(err) {
	case engine.KindStartupFailure, engine.KindGenerationFailure:
		return true
	}
	return false
}
