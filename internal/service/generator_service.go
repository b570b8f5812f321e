package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"symptomcheck/internal/config"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
)

// GeneratorService produces interview questions via the Gemini API. Without
// an API key, or when a call fails and fallback is on, it serves questions
// from a built-in bank so the interview keeps going.
type GeneratorService struct {
	config   *config.AIConfig
	client   *http.Client
	screener *policy.Screener

	// question ids the engine expects for the opener and the screen
	primaryID   string
	emergencyID string
}

// NewGeneratorService creates a new generator service. The opener and the
// emergency question carry the ids configured in rules.
func NewGeneratorService(cfg *config.AIConfig, rules policy.Rules) *GeneratorService {
	return &GeneratorService{
		config:      cfg,
		screener:    policy.NewScreener(rules.Emergency),
		primaryID:   rules.Completion.PrimaryConcernID,
		emergencyID: rules.Emergency.QuestionID,
		client: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// GenerateInitialQuestion opens an interview that has no seed
func (s *GeneratorService) GenerateInitialQuestion(ctx context.Context, locale string) (*model.Question, error) {
	mock := func() *model.Question { return mockInitialQuestion(s.primaryID) }
	if !s.config.IsEnabled() {
		return mock(), nil
	}

	response, err := s.callGemini(ctx, s.config.Models.Initial, buildInitialPrompt(locale))
	if err != nil {
		return s.fallbackQuestion(ctx, "initial", err, mock)
	}

	var gen generatedQuestion
	if err := json.Unmarshal([]byte(response), &gen); err != nil || gen.Question == nil {
		return s.fallbackQuestion(ctx, "initial", fmt.Errorf("unparseable question: %v", err), mock)
	}

	// the opener has to be recognisable as the primary concern
	q := *gen.Question
	q.ID = s.primaryID
	return &q, nil
}

// GenerateNextQuestion picks the next question from everything answered so far.
// It returns nil when the model decides the interview is complete.
func (s *GeneratorService) GenerateNextQuestion(ctx context.Context, responses []model.QuestionResponse, questionIndex int, locale string) (*model.Question, error) {
	mock := func() *model.Question { return s.nextBuiltIn(responses) }
	if !s.config.IsEnabled() {
		return mock(), nil
	}

	prompt, err := buildNextPrompt(responses, questionIndex, locale)
	if err != nil {
		return nil, err
	}
	response, err := s.callGemini(ctx, s.config.Models.Next, prompt)
	if err != nil {
		return s.fallbackQuestion(ctx, "next", err, mock)
	}

	var gen generatedQuestion
	if err := json.Unmarshal([]byte(response), &gen); err != nil {
		return s.fallbackQuestion(ctx, "next", fmt.Errorf("unparseable question: %w", err), mock)
	}
	if gen.Done {
		return nil, nil
	}
	if gen.Question == nil {
		return s.fallbackQuestion(ctx, "next", fmt.Errorf("response has neither question nor done"), mock)
	}

	q := *gen.Question
	if q.ID == "" || answered(responses, q.ID) || s.reserved(q.ID) {
		q.ID = "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	return &q, nil
}

// GenerateEmergencyQuestion returns the emergency screening question. Its id
// and option values are fixed; only the wording is localised.
func (s *GeneratorService) GenerateEmergencyQuestion(ctx context.Context, locale string) (*model.Question, error) {
	mock := func() *model.Question { return mockEmergencyQuestion(s.emergencyID) }
	base := mock()
	if !s.config.IsEnabled() || isEnglish(locale) {
		return base, nil
	}

	prompt, err := buildTranslatePrompt(base, locale)
	if err != nil {
		return nil, err
	}
	response, err := s.callGemini(ctx, s.config.Models.Emergency, prompt)
	if err != nil {
		return s.fallbackQuestion(ctx, "emergency", err, mock)
	}

	var tr translation
	if err := json.Unmarshal([]byte(response), &tr); err != nil || tr.Text == "" {
		return s.fallbackQuestion(ctx, "emergency", fmt.Errorf("unparseable translation: %v", err), mock)
	}
	base.Text = tr.Text
	for i := range base.Options {
		if label, ok := tr.Labels[base.Options[i].Value]; ok && label != "" {
			base.Options[i].Label = label
		}
	}
	return base, nil
}

// NeedsEmergencyScreen runs the local screening policy; red-flag detection
// never depends on the model being reachable
func (s *GeneratorService) NeedsEmergencyScreen(ctx context.Context, responses []model.QuestionResponse) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.screener.NeedsEmergencyScreen(responses), nil
}

// GenerateOptions produces choices for a generated_* question
func (s *GeneratorService) GenerateOptions(ctx context.Context, question *model.Question, responses []model.QuestionResponse, locale string) ([]model.Option, error) {
	if !question.Kind.Generated() {
		return question.Options, nil
	}
	mock := func() []model.Option { return mockOptions(question) }
	if !s.config.IsEnabled() {
		return mock(), nil
	}

	prompt, err := buildOptionsPrompt(question, responses, locale)
	if err != nil {
		return nil, err
	}
	response, err := s.callGemini(ctx, s.config.Models.Options, prompt)
	if err != nil {
		return s.fallbackOptions(ctx, err, mock)
	}

	var gen struct {
		Options []model.Option `json:"options"`
	}
	if err := json.Unmarshal([]byte(response), &gen); err != nil || len(gen.Options) == 0 {
		return s.fallbackOptions(ctx, fmt.Errorf("unparseable options: %v", err), mock)
	}
	for i := range gen.Options {
		if gen.Options[i].Value == "" {
			gen.Options[i].Value = gen.Options[i].ID
		}
	}
	return gen.Options, nil
}

// fallbackQuestion swaps a failed call for the built-in question when
// fallback is on. Cancellation always propagates.
func (s *GeneratorService) fallbackQuestion(ctx context.Context, op string, err error, mock func() *model.Question) (*model.Question, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !s.config.Fallback {
		return nil, fmt.Errorf("generate %s question: %w", op, err)
	}
	log.Printf("[Generator] %s question failed, using built-in: %v", op, err)
	return mock(), nil
}

func (s *GeneratorService) fallbackOptions(ctx context.Context, err error, mock func() []model.Option) ([]model.Option, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !s.config.Fallback {
		return nil, fmt.Errorf("generate options: %w", err)
	}
	log.Printf("[Generator] options failed, using built-in: %v", err)
	return mock(), nil
}

// callGemini makes a request to the Gemini API
func (s *GeneratorService) callGemini(ctx context.Context, modelName, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.ModelEndpoint(modelName), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("empty response from Gemini")
}

type generatedQuestion struct {
	Done     bool            `json:"done"`
	Question *model.Question `json:"question"`
}

type translation struct {
	Text   string            `json:"text"`
	Labels map[string]string `json:"labels"`
}

const questionSchema = `{
  "done": false,
  "question": {
    "id": "snake_case_identifier",
    "text": "the question shown to the patient",
    "kind": one of "single_choice", "multiple_choice", "boolean", "number_input", "scale", "text_input", "generated_multiple_choice",
    "options": [{"id": "...", "label": "...", "value": "..."}] (choice kinds only),
    "min": number (number_input and scale only),
    "max": number (number_input and scale only)
  }
}`

// Prompt builders
func buildInitialPrompt(locale string) string {
	return fmt.Sprintf(`You are a clinical intake assistant running a symptom checker. Return ONLY valid JSON matching this schema:
%s

Ask the patient, in locale %q, what their main health concern is today.
Use kind "text_input". Do not give medical advice.`, questionSchema, locale)
}

func buildNextPrompt(responses []model.QuestionResponse, questionIndex int, locale string) (string, error) {
	answers, err := json.Marshal(responses)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are a clinical intake assistant running a symptom checker. Return ONLY valid JSON matching this schema:
%s

Answers collected so far (question id, answer, time):
%s

This will be question number %d. Ask the single most informative next question
to characterise the patient's complaint (onset, severity, location, associated
symptoms, relevant history). Write it in locale %q.
Never repeat a question id that was already answered. Never ask about emergency
symptoms; that is handled separately. If nothing useful is left to ask, return
{"done": true}.`, questionSchema, string(answers), questionIndex+1, locale), nil
}

func buildTranslatePrompt(q *model.Question, locale string) (string, error) {
	labels := make(map[string]string, len(q.Options))
	for _, o := range q.Options {
		labels[o.Value] = o.Label
	}
	src, err := json.Marshal(translation{Text: q.Text, Labels: labels})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Translate the following medical screening question into locale %q.
Return ONLY valid JSON with the same shape and the same keys in "labels":
%s`, locale, string(src)), nil
}

func buildOptionsPrompt(q *model.Question, responses []model.QuestionResponse, locale string) (string, error) {
	answers, err := json.Marshal(responses)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are a clinical intake assistant. Return ONLY valid JSON matching this schema:
{"options": [{"id": "snake_case", "label": "text shown to the patient", "value": "snake_case"}]}

Propose between 4 and 8 answer options, in locale %q, for the question:
%s

Tailor them to the patient's answers so far:
%s

Include an option with value "none" when none of the options might apply.`, locale, q.Text, string(answers)), nil
}

// Built-in questions
func mockInitialQuestion(id string) *model.Question {
	return &model.Question{
		ID:   id,
		Text: "What is your main health concern today?",
		Kind: model.KindTextInput,
	}
}

func mockEmergencyQuestion(id string) *model.Question {
	return &model.Question{
		ID:   id,
		Text: "Are you experiencing any of the following right now?",
		Kind: model.KindMultipleChoice,
		Options: []model.Option{
			{ID: "chest_pain", Label: "Chest pain, pressure or tightness", Value: "chest_pain"},
			{ID: "breathing", Label: "Severe difficulty breathing", Value: "breathing"},
			{ID: "fainting", Label: "Fainting or loss of consciousness", Value: "fainting"},
			{ID: "stroke_signs", Label: "Face drooping, arm weakness or slurred speech", Value: "stroke_signs"},
			{ID: "bleeding", Label: "Bleeding that will not stop", Value: "bleeding"},
			{ID: "none", Label: "None of these", Value: model.NoneSentinel},
		},
	}
}

func mockQuestionBank() []model.Question {
	sevMin, sevMax := model.Bounds(0, 10)
	ageMin, ageMax := model.Bounds(0, 120)
	return []model.Question{
		{
			ID:   "onset",
			Text: "When did this start?",
			Kind: model.KindSingleChoice,
			Options: []model.Option{
				{ID: "today", Label: "Today", Value: "today"},
				{ID: "days", Label: "In the last few days", Value: "days"},
				{ID: "week", Label: "About a week ago", Value: "week"},
				{ID: "longer", Label: "More than a week ago", Value: "longer"},
			},
		},
		{ID: "severity", Text: "How severe is it right now, from 0 to 10?", Kind: model.KindScale, Min: sevMin, Max: sevMax},
		{ID: "fever", Text: "Have you had a fever?", Kind: model.KindBoolean},
		{ID: "associated_symptoms", Text: "Which of these other symptoms do you have?", Kind: model.KindGeneratedMultipleChoice},
		{ID: "medications", Text: "What have you taken for it so far?", Kind: model.KindTextInput},
		{ID: "recurrence", Text: "Have you had this before?", Kind: model.KindBoolean},
		{ID: "age", Text: "How old are you?", Kind: model.KindNumberInput, Min: ageMin, Max: ageMax},
	}
}

// nextBuiltIn returns the first bank question not yet answered. Bank ids
// that clash with the configured opener or screen ids are skipped.
func (s *GeneratorService) nextBuiltIn(responses []model.QuestionResponse) *model.Question {
	for _, q := range mockQuestionBank() {
		if !answered(responses, q.ID) && !s.reserved(q.ID) {
			return &q
		}
	}
	return nil
}

func (s *GeneratorService) reserved(id string) bool {
	return id == s.primaryID || id == s.emergencyID
}

func mockOptions(q *model.Question) []model.Option {
	if q.Kind == model.KindGeneratedTextInput {
		return nil
	}
	return []model.Option{
		{ID: "nausea", Label: "Nausea", Value: "nausea"},
		{ID: "fatigue", Label: "Fatigue", Value: "fatigue"},
		{ID: "dizziness", Label: "Dizziness", Value: "dizziness"},
		{ID: "cough", Label: "Cough", Value: "cough"},
		{ID: "rash", Label: "Rash", Value: "rash"},
		{ID: "none", Label: "None of these", Value: model.NoneSentinel},
	}
}

func answered(responses []model.QuestionResponse, id string) bool {
	for _, r := range responses {
		if r.QuestionID == id {
			return true
		}
	}
	return false
}

func isEnglish(locale string) bool {
	return locale == "" || locale == "en" || strings.HasPrefix(locale, "en-")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
