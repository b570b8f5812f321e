package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptomcheck/internal/config"
	"symptomcheck/internal/engine"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
	"symptomcheck/internal/service"
)

func runScript(t *testing.T, seed string, lines ...string) string {
	t.Helper()
	color.NoColor = true

	rules := policy.DefaultRules()
	gen := service.NewGeneratorService(&config.AIConfig{Fallback: true}, rules)

	var out bytes.Buffer
	iv := newInterviewer(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, gen)
	require.NoError(t, iv.run(context.Background(), gen, rules, "en", seed))
	return out.String()
}

func TestInterviewCompletes(t *testing.T) {
	out := runScript(t, "headache", "1", "4", "no")
	assert.Contains(t, out, "When did this start?")
	assert.Contains(t, out, "assessment is complete")
	assert.Contains(t, out, "headache")
}

func TestInterviewBackAndInvalidInput(t *testing.T) {
	out := runScript(t, "", ":back", "sore throat", "7", "2", ":back", "2", "5", "maybe", "yes")
	assert.Contains(t, out, "This is the first question.")
	assert.Contains(t, out, "is not one of the options")
	assert.Contains(t, out, "answer yes or no")
	assert.Contains(t, out, "assessment is complete")
}

func TestInterviewEmergency(t *testing.T) {
	out := runScript(t, "I have chest pain", "1")
	assert.Contains(t, out, "Are you experiencing any of the following right now?")
	assert.Contains(t, out, "urgent care")
}

func TestInterviewQuitAndEOF(t *testing.T) {
	out := runScript(t, "headache", ":quit")
	assert.Contains(t, out, "Interview ended.")

	out = runScript(t, "headache")
	assert.NotContains(t, out, "complete")
}

func TestParseAnswer(t *testing.T) {
	lo, hi := model.Bounds(0, 10)
	single := &model.Question{ID: "s", Kind: model.KindSingleChoice, Options: []model.Option{
		{ID: "a", Label: "Alpha", Value: "a"},
		{ID: "b", Label: "Beta", Value: "b"},
	}}
	multi := &model.Question{ID: "m", Kind: model.KindMultipleChoice, Options: single.Options}
	generated := &model.Question{ID: "g", Kind: model.KindGeneratedMultipleChoice}
	scale := &model.Question{ID: "n", Kind: model.KindScale, Min: lo, Max: hi}
	boolean := &model.Question{ID: "y", Kind: model.KindBoolean}

	tests := []struct {
		name    string
		q       *model.Question
		opts    []model.Option
		line    string
		want    model.Answer
		wantErr bool
	}{
		{"single by number", single, nil, "2", model.TextAnswer("b"), false},
		{"single by label", single, nil, "alpha", model.TextAnswer("a"), false},
		{"single unknown", single, nil, "3", model.Answer{}, true},
		{"multi", multi, nil, "1, b", model.ListAnswer("a", "b"), false},
		{"multi empty", multi, nil, " , ", model.Answer{}, true},
		{"generated with options", generated, single.Options, "1", model.ListAnswer("a"), false},
		{"generated free text", generated, nil, "nausea, rash", model.ListAnswer("nausea", "rash"), false},
		{"scale", scale, nil, "7.5", model.NumberAnswer(7.5), false},
		{"scale not a number", scale, nil, "high", model.Answer{}, true},
		{"boolean", boolean, nil, "Y", model.BoolAnswer(true), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnswer(tt.q, tt.opts, tt.line)
			if tt.wantErr {
				require.ErrorIs(t, err, engine.ErrInvalidAnswer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommandHasInterview(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"interview"})
	require.NoError(t, err)
	assert.Equal(t, "interview", sub.Name())
	assert.NotNil(t, sub.Flags().Lookup("seed"))
	assert.NotNil(t, sub.Flags().Lookup("policy"))
	assert.NotNil(t, sub.Flags().Lookup("locale"))
}
