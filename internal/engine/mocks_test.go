package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"symptomcheck/internal/model"
)

// mockGenerator is a testify mock of Generator
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateInitialQuestion(ctx context.Context, locale string) (*model.Question, error) {
	args := m.Called(ctx, locale)
	q, _ := args.Get(0).(*model.Question)
	return q, args.Error(1)
}

func (m *mockGenerator) GenerateNextQuestion(ctx context.Context, responses []model.QuestionResponse, questionIndex int, locale string) (*model.Question, error) {
	args := m.Called(ctx, responses, questionIndex, locale)
	q, _ := args.Get(0).(*model.Question)
	return q, args.Error(1)
}

func (m *mockGenerator) GenerateEmergencyQuestion(ctx context.Context, locale string) (*model.Question, error) {
	args := m.Called(ctx, locale)
	q, _ := args.Get(0).(*model.Question)
	return q, args.Error(1)
}

func (m *mockGenerator) NeedsEmergencyScreen(ctx context.Context, responses []model.QuestionResponse) (bool, error) {
	args := m.Called(ctx, responses)
	return args.Bool(0), args.Error(1)
}

// gatedGenerator answers deterministically. While gated every call announces
// itself on entered and then waits for open or for its context to end.
type gatedGenerator struct {
	mu      sync.Mutex
	gated   bool
	release chan struct{}
	entered chan string
	screen  bool
	calls   map[string]int
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		release: make(chan struct{}),
		entered: make(chan string, 16),
		calls:   make(map[string]int),
	}
}

func (g *gatedGenerator) gate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gated = true
	g.release = make(chan struct{})
}

func (g *gatedGenerator) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gated = false
	close(g.release)
}

func (g *gatedGenerator) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *gatedGenerator) wait(ctx context.Context, name string) error {
	g.mu.Lock()
	g.calls[name]++
	gated, release := g.gated, g.release
	g.mu.Unlock()

	if !gated {
		return ctx.Err()
	}
	g.entered <- name
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedGenerator) GenerateInitialQuestion(ctx context.Context, locale string) (*model.Question, error) {
	if err := g.wait(ctx, "initial"); err != nil {
		return nil, err
	}
	return textQuestion("q1"), nil
}

func (g *gatedGenerator) GenerateNextQuestion(ctx context.Context, responses []model.QuestionResponse, questionIndex int, locale string) (*model.Question, error) {
	if err := g.wait(ctx, "next"); err != nil {
		return nil, err
	}
	return textQuestion(fmt.Sprintf("q%d", questionIndex+1)), nil
}

func (g *gatedGenerator) GenerateEmergencyQuestion(ctx context.Context, locale string) (*model.Question, error) {
	if err := g.wait(ctx, "emergency"); err != nil {
		return nil, err
	}
	return emergencyQuestion(), nil
}

func (g *gatedGenerator) NeedsEmergencyScreen(ctx context.Context, responses []model.QuestionResponse) (bool, error) {
	if err := g.wait(ctx, "check"); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.screen, nil
}

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func textQuestion(id string) *model.Question {
	return &model.Question{ID: id, Text: "Tell us about " + id, Kind: model.KindTextInput}
}

func emergencyQuestion() *model.Question {
	return &model.Question{
		ID:   model.EmergencyQuestionID,
		Text: "Are you experiencing any of the following right now?",
		Kind: model.KindMultipleChoice,
		Options: []model.Option{
			{ID: "chest_pain", Label: "Chest pain or pressure", Value: "chest_pain"},
			{ID: "fainting", Label: "Fainting", Value: "fainting"},
			{ID: "none", Label: "None of these", Value: model.NoneSentinel},
		},
	}
}

func answer(id string, a model.Answer) model.QuestionResponse {
	return model.QuestionResponse{QuestionID: id, Answer: a, Timestamp: testTime}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for generator")
	}
	var zero T
	return zero
}
