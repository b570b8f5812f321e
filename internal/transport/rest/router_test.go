package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptomcheck/internal/config"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
	"symptomcheck/internal/service"
	"symptomcheck/internal/transport/ws"
)

type memStore struct {
	mu      sync.Mutex
	snaps   map[string]model.Snapshot
	options map[string][]model.Option
	records map[string]*model.AssessmentRecord
	stats   model.OutcomeStats
}

func newMemStore() *memStore {
	return &memStore{
		snaps:   map[string]model.Snapshot{},
		options: map[string][]model.Option{},
		records: map[string]*model.AssessmentRecord{},
	}
}

func (m *memStore) SetSnapshot(ctx context.Context, id string, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[id] = *snap
	return nil
}

func (m *memStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.snaps[id]; ok {
		return &snap, nil
	}
	return nil, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func (m *memStore) SetOptions(ctx context.Context, id, questionID string, opts []model.Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[id+"/"+questionID] = opts
	return nil
}

func (m *memStore) GetOptions(ctx context.Context, id, questionID string) ([]model.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options[id+"/"+questionID], nil
}

func (m *memStore) DeleteAll(ctx context.Context, id string) error { return nil }

func (m *memStore) RecordOutcome(ctx context.Context, outcome model.Outcome, responses int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch outcome {
	case model.OutcomeCompleted:
		m.stats.Completed++
	case model.OutcomeEmergency:
		m.stats.Emergency++
	}
	m.stats.TotalResponses += int64(responses)
	return nil
}

func (m *memStore) GetStats(ctx context.Context) (*model.OutcomeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	return &stats, nil
}

func (m *memStore) Save(ctx context.Context, record *model.AssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *memStore) EnsureIndexes(ctx context.Context) error { return nil }

func (m *memStore) Persist(ctx context.Context, record *model.AssessmentRecord) error {
	if err := m.Save(ctx, record); err != nil {
		return err
	}
	return m.RecordOutcome(ctx, record.Outcome, len(record.Responses))
}

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func (c *apiClient) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	store := newMemStore()
	authSvc := service.NewAuthService("test-secret", time.Hour)
	gen := service.NewGeneratorService(&config.AIConfig{Fallback: true}, policy.DefaultRules())
	hub := ws.NewHub()
	t.Cleanup(hub.Close)

	assessmentSvc := service.NewAssessmentService(gen, policy.DefaultRules(), "en", authSvc, store, store, store, store, store, hub)
	t.Cleanup(assessmentSvc.Shutdown)

	return &apiClient{t: t, router: NewRouter(&Container{
		AuthService:       authSvc,
		AssessmentService: assessmentSvc,
		WSHub:             hub,
	})}
}

func TestInterviewOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do("POST", "/v1/assessments", "", map[string]string{"seed": "headache"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.StartAssessmentResponse
	decode(t, rec, &created)
	id, token := created.AssessmentID, created.Token
	require.Equal(t, "onset", created.Snapshot.CurrentQuestion.ID)

	answers := []struct {
		questionID string
		answer     interface{}
	}{
		{"onset", "today"},
		{"severity", 5},
		{"fever", false},
	}
	var snap model.Snapshot
	for _, a := range answers {
		rec = api.do("POST", "/v1/assessments/"+id+"/answers", token, map[string]interface{}{
			"questionId": a.questionID,
			"answer":     a.answer,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &snap)
	}
	assert.Equal(t, model.StateCompleted, snap.State)

	rec = api.do("GET", "/v1/assessments/"+id+"/record", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record model.AssessmentRecord
	decode(t, rec, &record)
	assert.Equal(t, model.OutcomeCompleted, record.Outcome)
	assert.Len(t, record.Responses, 4)

	rec = api.do("GET", "/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.OutcomeStats
	decode(t, rec, &stats)
	assert.Equal(t, int64(1), stats.Completed)

	rec = api.do("POST", "/v1/assessments/"+id+"/answers", token, map[string]interface{}{"questionId": "fever", "answer": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTPErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do("POST", "/v1/assessments", "", map[string]string{"locale": "not a locale!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do("POST", "/v1/assessments", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.StartAssessmentResponse
	decode(t, rec, &created)
	id, token := created.AssessmentID, created.Token

	rec = api.do("GET", "/v1/assessments/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := api.do("POST", "/v1/assessments", "", nil)
	var otherCreated model.StartAssessmentResponse
	decode(t, other, &otherCreated)
	rec = api.do("GET", "/v1/assessments/"+id, otherCreated.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do("POST", "/v1/assessments/"+id+"/back", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing to go back to")

	rec = api.do("POST", "/v1/assessments/"+id+"/answers", token, map[string]interface{}{"questionId": model.PrimaryConcernID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing answer")

	rec = api.do("POST", "/v1/assessments/"+id+"/answers", token, map[string]interface{}{"questionId": "onset", "answer": "today"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "not the current question")

	rec = api.do("POST", "/v1/assessments/"+id+"/retry", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do("GET", "/v1/assessments/"+id+"/record", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do("DELETE", "/v1/assessments/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do("POST", "/v1/assessments/"+id+"/restart", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmergencyOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do("POST", "/v1/assessments", "", map[string]string{"seed": "I fainted and have chest pain"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.StartAssessmentResponse
	decode(t, rec, &created)
	require.Equal(t, model.EmergencyQuestionID, created.Snapshot.CurrentQuestion.ID)

	rec = api.do("GET", "/v1/assessments/"+created.AssessmentID+"/questions/"+model.EmergencyQuestionID+"/options", created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do("POST", "/v1/assessments/"+created.AssessmentID+"/answers", created.Token, map[string]interface{}{
		"questionId": model.EmergencyQuestionID,
		"answer":     []string{"fainting"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var snap model.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, model.StateEmergency, snap.State)
}

func TestCORS(t *testing.T) {
	h := corsMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("OPTIONS", "/v1/assessments", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/v1/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, "*", allowOrigin(nil, "https://any.example"))
}
