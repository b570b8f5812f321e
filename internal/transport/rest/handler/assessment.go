package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"symptomcheck/internal/engine"
	"symptomcheck/internal/model"
	"symptomcheck/internal/service"
)

// AssessmentHandler handles the interview endpoints
type AssessmentHandler struct {
	assessmentSvc *service.AssessmentService
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(assessmentSvc *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentSvc: assessmentSvc}
}

// Create handles POST /v1/assessments
func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.StartAssessmentRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := h.assessmentSvc.Start(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /v1/assessments/{id}
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.assessmentSvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubmitAnswer handles POST /v1/assessments/{id}/answers
func (h *AssessmentHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitAnswerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Answer.IsZero() {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	snap, err := h.assessmentSvc.Submit(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Back handles POST /v1/assessments/{id}/back
func (h *AssessmentHandler) Back(w http.ResponseWriter, r *http.Request) {
	snap, err := h.assessmentSvc.Back(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Retry handles POST /v1/assessments/{id}/retry
func (h *AssessmentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	resp, err := h.assessmentSvc.Retry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Restart handles POST /v1/assessments/{id}/restart
func (h *AssessmentHandler) Restart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.assessmentSvc.Restart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Discard handles DELETE /v1/assessments/{id}
func (h *AssessmentHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.assessmentSvc.Discard(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Options handles GET /v1/assessments/{id}/questions/{questionId}/options
func (h *AssessmentHandler) Options(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	opts, err := h.assessmentSvc.Options(r.Context(), vars["id"], vars["questionId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questionId": vars["questionId"],
		"options":    opts,
	})
}

// Record handles GET /v1/assessments/{id}/record
func (h *AssessmentHandler) Record(w http.ResponseWriter, r *http.Request) {
	record, err := h.assessmentSvc.Record(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Stats handles GET /v1/stats
func (h *AssessmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.assessmentSvc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		writeError(w, http.StatusNotFound, "assessment not found")
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusGone, "assessment closed")
	case errors.Is(err, engine.ErrInvalidAnswer), errors.Is(err, service.ErrNoGeneratedOptions):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrCannotGoBack),
		errors.Is(err, service.ErrQuestionNotCurrent):
		writeError(w, http.StatusConflict, err.Error())
	case engine.IsDuplicate(err):
		writeError(w, http.StatusConflict, "request already in progress")
	case engine.IsCancelled(err):
		writeError(w, http.StatusConflict, "superseded")
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
