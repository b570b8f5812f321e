package policy

import (
	"strings"

	"symptomcheck/internal/model"
)

// CompletionRules bounds the length of an interview
type CompletionRules struct {
	PrimaryConcernID string `yaml:"primary_concern_id"`
	MinResponses     int    `yaml:"min_responses"`
	MaxResponses     int    `yaml:"max_responses"`
}

func DefaultCompletionRules() CompletionRules {
	return CompletionRules{
		PrimaryConcernID: model.PrimaryConcernID,
		MinResponses:     4,
		MaxResponses:     8,
	}
}

// Completion decides when enough has been collected to hand off to analysis
type Completion struct {
	rules CompletionRules
}

func NewCompletion(rules CompletionRules) Completion {
	return Completion{rules: rules}
}

// Rules returns the thresholds in use
func (c Completion) Rules() CompletionRules {
	return c.rules
}

// IsComplete reports whether the primary concern has been answered and the
// minimum number of responses collected
func (c Completion) IsComplete(responses []model.QuestionResponse) bool {
	return c.hasPrimaryConcern(responses) && len(responses) >= c.rules.MinResponses
}

// Exhausted reports whether the hard question budget is used up
func (c Completion) Exhausted(responses []model.QuestionResponse) bool {
	return c.rules.MaxResponses > 0 && len(responses) >= c.rules.MaxResponses
}

func (c Completion) hasPrimaryConcern(responses []model.QuestionResponse) bool {
	for _, r := range responses {
		if r.QuestionID != c.rules.PrimaryConcernID {
			continue
		}
		for _, v := range r.Answer.Values() {
			if strings.TrimSpace(v) != "" {
				return true
			}
		}
	}
	return false
}
