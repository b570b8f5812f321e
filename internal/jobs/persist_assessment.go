// Package jobs holds background tasks processed by the asynq worker
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"symptomcheck/internal/cache"
	"symptomcheck/internal/model"
	"symptomcheck/internal/repository"
)

const TypePersistAssessment = "assessment:persist"

type PersistAssessmentPayload struct {
	Record model.AssessmentRecord `json:"record"`
}

// NewPersistAssessmentTask wraps a finished ledger for write-behind storage.
// The task id is derived from the assessment and session ids, so enqueueing
// the same session twice is rejected while the first task is still retained.
func NewPersistAssessmentTask(record *model.AssessmentRecord) (*asynq.Task, error) {
	payload, err := json.Marshal(PersistAssessmentPayload{Record: *record})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePersistAssessment, payload, asynq.TaskID(TaskID(record)), asynq.MaxRetry(5)), nil
}

// TaskID is the queue-level id of a record's persist task
func TaskID(record *model.AssessmentRecord) string {
	id := "persist-" + record.ID
	if record.SessionID != "" {
		id += "-" + record.SessionID
	}
	return id
}

// Handler processes assessment tasks
type Handler struct {
	repo  repository.AssessmentRepo
	stats cache.StatsCache
}

// NewHandler creates a task handler. stats may be nil.
func NewHandler(repo repository.AssessmentRepo, stats cache.StatsCache) *Handler {
	return &Handler{repo: repo, stats: stats}
}

// Register binds the handler to its task types
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePersistAssessment, h.HandlePersistAssessment)
}

func (h *Handler) HandlePersistAssessment(ctx context.Context, t *asynq.Task) error {
	var payload PersistAssessmentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Printf("[Jobs] Payload decode error: %v", err)
		return fmt.Errorf("decode %s payload: %v: %w", TypePersistAssessment, err, asynq.SkipRetry)
	}
	return h.Persist(ctx, &payload.Record)
}

// Persist stores a record and counts its outcome. It is used directly when
// no queue is configured.
func (h *Handler) Persist(ctx context.Context, record *model.AssessmentRecord) error {
	if record.ID == "" {
		return fmt.Errorf("assessment record has no id: %w", asynq.SkipRetry)
	}
	if err := h.repo.Save(ctx, record); err != nil {
		log.Printf("[Jobs] Failed to save assessment %s: %v", record.ID, err)
		return err
	}

	if h.stats != nil {
		if err := h.stats.RecordOutcome(ctx, record.Outcome, len(record.Responses)); err != nil {
			log.Printf("[Jobs] Failed to record outcome for %s: %v", record.ID, err)
		}
	}

	log.Printf("[Jobs] Assessment %s saved (%s, %d responses)", record.ID, record.Outcome, len(record.Responses))
	return nil
}
