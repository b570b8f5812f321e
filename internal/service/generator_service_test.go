package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptomcheck/internal/config"
	"symptomcheck/internal/engine"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
)

// geminiStub answers every generateContent call with body wrapped in the
// Gemini candidate envelope
func geminiStub(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		envelope := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": body}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(envelope)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestGenerator(baseURL string, fallback bool) *GeneratorService {
	cfg := &config.AIConfig{
		BaseURL:   baseURL,
		Models:    config.GeminiModels{Initial: "m", Next: "m", Emergency: "m", Options: "m"},
		TimeoutMS: 2000,
		Fallback:  fallback,
	}
	if baseURL != "" {
		cfg.APIKey = "test-key"
	}
	return NewGeneratorService(cfg, policy.DefaultRules())
}

func TestBuiltInInterview(t *testing.T) {
	g := newTestGenerator("", true)
	ctx := context.Background()

	q, err := g.GenerateInitialQuestion(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, model.PrimaryConcernID, q.ID)

	var responses []model.QuestionResponse
	seen := map[string]bool{}
	for i := 0; i < len(mockQuestionBank()); i++ {
		q, err := g.GenerateNextQuestion(ctx, responses, len(responses), "en")
		require.NoError(t, err)
		require.NotNil(t, q)
		require.NoError(t, q.Validate())
		assert.False(t, seen[q.ID], "question %s repeated", q.ID)
		seen[q.ID] = true
		responses = append(responses, model.QuestionResponse{QuestionID: q.ID, Answer: model.TextAnswer("x")})
	}

	q, err = g.GenerateNextQuestion(ctx, responses, len(responses), "en")
	require.NoError(t, err)
	assert.Nil(t, q, "bank exhausted")
}

func TestBuiltInEmergencyQuestion(t *testing.T) {
	g := newTestGenerator("", true)
	q, err := g.GenerateEmergencyQuestion(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyQuestionID, q.ID)
	require.NoError(t, q.Validate())
	require.NoError(t, q.ValidateAnswer(model.ListAnswer(model.NoneSentinel)))
}

func TestGenerateNextQuestionFromGemini(t *testing.T) {
	srv, calls := geminiStub(t, http.StatusOK, `{"question":{"id":"onset","text":"When did it start?","kind":"text_input"}}`)
	g := newTestGenerator(srv.URL, false)

	q, err := g.GenerateNextQuestion(context.Background(), nil, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "onset", q.ID)
	assert.Equal(t, model.KindTextInput, q.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// an id that was already answered gets a fresh one
	answered := []model.QuestionResponse{{QuestionID: "onset", Answer: model.TextAnswer("today")}}
	q, err = g.GenerateNextQuestion(context.Background(), answered, 1, "en")
	require.NoError(t, err)
	assert.NotEqual(t, "onset", q.ID)
	assert.True(t, strings.HasPrefix(q.ID, "q_"))
}

func TestGenerateNextQuestionDone(t *testing.T) {
	srv, _ := geminiStub(t, http.StatusOK, `{"done":true}`)
	g := newTestGenerator(srv.URL, false)

	q, err := g.GenerateNextQuestion(context.Background(), nil, 3, "en")
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestGeminiFailure(t *testing.T) {
	srv, _ := geminiStub(t, http.StatusServiceUnavailable, `overloaded`)

	strict := newTestGenerator(srv.URL, false)
	_, err := strict.GenerateNextQuestion(context.Background(), nil, 1, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	lenient := newTestGenerator(srv.URL, true)
	q, err := lenient.GenerateNextQuestion(context.Background(), nil, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, mockQuestionBank()[0].ID, q.ID)
}

func TestCancellationIsNotMasked(t *testing.T) {
	srv, _ := geminiStub(t, http.StatusOK, `{"done":true}`)
	g := newTestGenerator(srv.URL, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.GenerateNextQuestion(ctx, nil, 1, "en")
	require.ErrorIs(t, err, context.Canceled)

	_, err = g.NeedsEmergencyScreen(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEmergencyTranslationKeepsIdentity(t *testing.T) {
	srv, _ := geminiStub(t, http.StatusOK, `{"text":"¿Tiene alguno de estos síntomas?","labels":{"none":"Ninguno","chest_pain":"Dolor de pecho"}}`)
	g := newTestGenerator(srv.URL, false)

	q, err := g.GenerateEmergencyQuestion(context.Background(), "es")
	require.NoError(t, err)
	assert.Equal(t, model.EmergencyQuestionID, q.ID)
	assert.Equal(t, "¿Tiene alguno de estos síntomas?", q.Text)

	labels := map[string]string{}
	for _, o := range q.Options {
		labels[o.Value] = o.Label
	}
	assert.Equal(t, "Ninguno", labels[model.NoneSentinel])
	assert.Equal(t, "Dolor de pecho", labels["chest_pain"])
	assert.Equal(t, "Fainting or loss of consciousness", labels["fainting"])
}

func TestGenerateOptions(t *testing.T) {
	srv, calls := geminiStub(t, http.StatusOK, `{"options":[{"id":"nausea","label":"Nausea"},{"id":"none","label":"None","value":"none"}]}`)
	g := newTestGenerator(srv.URL, false)
	ctx := context.Background()

	fixed := &model.Question{ID: "onset", Kind: model.KindSingleChoice, Options: []model.Option{{ID: "a", Label: "A", Value: "a"}}}
	opts, err := g.GenerateOptions(ctx, fixed, nil, "en")
	require.NoError(t, err)
	assert.Equal(t, fixed.Options, opts)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))

	generated := &model.Question{ID: "associated_symptoms", Text: "Other symptoms?", Kind: model.KindGeneratedMultipleChoice}
	opts, err = g.GenerateOptions(ctx, generated, nil, "en")
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "nausea", opts[0].Value, "missing value falls back to id")
}

func TestNeedsEmergencyScreenUsesPolicy(t *testing.T) {
	g := newTestGenerator("", true)
	needs, err := g.NeedsEmergencyScreen(context.Background(), []model.QuestionResponse{
		{QuestionID: model.PrimaryConcernID, Answer: model.TextAnswer("I fainted this morning")},
	})
	require.NoError(t, err)
	assert.True(t, needs)
}

func customRules() policy.Rules {
	rules := policy.DefaultRules()
	rules.Completion.PrimaryConcernID = "chief_complaint"
	rules.Emergency.QuestionID = "red_flags"
	return rules
}

func TestConfiguredQuestionIDs(t *testing.T) {
	rules := customRules()
	g := NewGeneratorService(&config.AIConfig{Fallback: true}, rules)
	ctx := context.Background()

	q, err := g.GenerateInitialQuestion(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "chief_complaint", q.ID)

	q, err = g.GenerateEmergencyQuestion(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "red_flags", q.ID)
}

func TestConfiguredIDsFromGemini(t *testing.T) {
	srv, _ := geminiStub(t, http.StatusOK, `{"question":{"id":"red_flags","text":"Any red flags?","kind":"boolean"}}`)
	g := NewGeneratorService(&config.AIConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Models:    config.GeminiModels{Initial: "m", Next: "m", Emergency: "m", Options: "m"},
		TimeoutMS: 2000,
		Fallback:  true,
	}, customRules())
	ctx := context.Background()

	q, err := g.GenerateInitialQuestion(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "chief_complaint", q.ID)

	// a follow-up may not take the screen's id
	q, err = g.GenerateNextQuestion(ctx, nil, 1, "en")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q.ID, "q_"))

	// the stub's reply is no translation, so the built-in screen is served
	q, err = g.GenerateEmergencyQuestion(ctx, "es")
	require.NoError(t, err)
	assert.Equal(t, "red_flags", q.ID)
}

func TestEngineWithCustomPolicy(t *testing.T) {
	rules := customRules()
	g := NewGeneratorService(&config.AIConfig{Fallback: true}, rules)
	ctx := context.Background()

	t.Run("emergency", func(t *testing.T) {
		var detected []engine.Result
		eng, err := engine.New(g, engine.Config{
			Rules:               rules,
			OnEmergencyDetected: func(_ context.Context, res engine.Result) { detected = append(detected, res) },
		})
		require.NoError(t, err)
		t.Cleanup(eng.Close)

		require.NoError(t, eng.Start(ctx, "crushing chest pain"))
		snap := eng.Snapshot()
		require.Equal(t, model.StateQuestioning, snap.State)
		require.NotNil(t, snap.CurrentQuestion)
		assert.Equal(t, "red_flags", snap.CurrentQuestion.ID)

		require.NoError(t, eng.SubmitAnswer(ctx, model.QuestionResponse{QuestionID: "red_flags", Answer: model.ListAnswer("chest_pain")}))
		assert.Equal(t, model.StateEmergency, eng.Snapshot().State)
		assert.Len(t, detected, 1)
	})

	t.Run("completes at the minimum", func(t *testing.T) {
		eng, err := engine.New(g, engine.Config{Rules: rules})
		require.NoError(t, err)
		t.Cleanup(eng.Close)

		require.NoError(t, eng.Start(ctx, ""))
		assert.Equal(t, "chief_complaint", eng.Snapshot().CurrentQuestion.ID)

		for _, r := range []model.QuestionResponse{
			{QuestionID: "chief_complaint", Answer: model.TextAnswer("headache")},
			{QuestionID: "onset", Answer: model.TextAnswer("today")},
			{QuestionID: "severity", Answer: model.NumberAnswer(4)},
			{QuestionID: "fever", Answer: model.BoolAnswer(false)},
		} {
			require.NoError(t, eng.SubmitAnswer(ctx, r))
		}
		snap := eng.Snapshot()
		assert.Equal(t, model.StateCompleted, snap.State)
		assert.Len(t, snap.Responses, 4)
	})
}
