package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptomcheck/internal/model"
)

func resp(id string, a model.Answer) model.QuestionResponse {
	return model.QuestionResponse{QuestionID: id, Answer: a}
}

func TestNeedsEmergencyScreen(t *testing.T) {
	s := NewScreener(DefaultEmergencyRules())

	tests := []struct {
		name      string
		responses []model.QuestionResponse
		want      bool
	}{
		{"empty", nil, false},
		{"benign text", []model.QuestionResponse{resp(model.PrimaryConcernID, model.TextAnswer("runny nose"))}, false},
		{"keyword case-insensitive", []model.QuestionResponse{resp(model.PrimaryConcernID, model.TextAnswer("Sudden CHEST PAIN since noon"))}, true},
		{"keyword in list answer", []model.QuestionResponse{
			resp(model.PrimaryConcernID, model.TextAnswer("cough")),
			resp("other", model.ListAnswer("fever", "shortness of breath")),
		}, true},
		{"severity at threshold", []model.QuestionResponse{resp("pain_severity", model.NumberAnswer(9))}, true},
		{"severity below threshold", []model.QuestionResponse{resp("pain_severity", model.NumberAnswer(8))}, false},
		{"number on unlisted question", []model.QuestionResponse{resp("age", model.NumberAnswer(95))}, false},
		{"already screened", []model.QuestionResponse{
			resp(model.PrimaryConcernID, model.TextAnswer("chest pain")),
			resp(model.EmergencyQuestionID, model.ListAnswer("none")),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NeedsEmergencyScreen(tt.responses))
		})
	}
}

func TestIsEmergencyEscalation(t *testing.T) {
	s := NewScreener(DefaultEmergencyRules())

	tests := []struct {
		name string
		r    *model.QuestionResponse
		want bool
	}{
		{"nil", nil, false},
		{"absent", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID}, false},
		{"empty list", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.ListAnswer()}, false},
		{"none only", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.ListAnswer("none")}, false},
		{"none text", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.TextAnswer(" None ")}, false},
		{"false", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.BoolAnswer(false)}, false},
		{"symptom", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.ListAnswer("chest_pain")}, true},
		{"none plus symptom", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.ListAnswer("none", "fainting")}, true},
		{"text symptom", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.TextAnswer("fainting")}, true},
		{"true", &model.QuestionResponse{QuestionID: model.EmergencyQuestionID, Answer: model.BoolAnswer(true)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsEmergencyEscalation(tt.r))
		})
	}
}

func TestCompletion(t *testing.T) {
	c := NewCompletion(CompletionRules{PrimaryConcernID: model.PrimaryConcernID, MinResponses: 3, MaxResponses: 5})

	withPrimary := []model.QuestionResponse{
		resp(model.PrimaryConcernID, model.TextAnswer("headache")),
		resp("q2", model.BoolAnswer(true)),
	}
	assert.False(t, c.IsComplete(withPrimary))

	withPrimary = append(withPrimary, resp("q3", model.NumberAnswer(4)))
	assert.True(t, c.IsComplete(withPrimary))
	assert.False(t, c.Exhausted(withPrimary))

	blankPrimary := []model.QuestionResponse{
		resp(model.PrimaryConcernID, model.TextAnswer("  ")),
		resp("q2", model.BoolAnswer(true)),
		resp("q3", model.BoolAnswer(true)),
	}
	assert.False(t, c.IsComplete(blankPrimary))

	long := make([]model.QuestionResponse, 5)
	for i := range long {
		long[i] = resp("x", model.BoolAnswer(false))
	}
	assert.False(t, c.IsComplete(long))
	assert.True(t, c.Exhausted(long))
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	r := DefaultRules()
	r.Completion.MaxResponses = 2
	assert.Error(t, r.Validate())

	r = DefaultRules()
	r.Completion.MinResponses = 0
	assert.Error(t, r.Validate())

	r = DefaultRules()
	r.Emergency.QuestionID = r.Completion.PrimaryConcernID
	assert.Error(t, r.Validate())

	r = DefaultRules()
	r.Emergency.Severity = append(r.Emergency.Severity, SeverityTrigger{Threshold: 3})
	assert.Error(t, r.Validate())
}
