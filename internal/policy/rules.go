// Package policy holds the emergency screening and completion rules of the
// questionnaire. Thresholds come from configuration, see config.LoadPolicy.
package policy

import (
	"errors"
	"fmt"
)

// Rules is the full policy as loaded from the policy file
type Rules struct {
	Completion CompletionRules `yaml:"completion"`
	Emergency  EmergencyRules  `yaml:"emergency"`
}

func DefaultRules() Rules {
	return Rules{
		Completion: DefaultCompletionRules(),
		Emergency:  DefaultEmergencyRules(),
	}
}

// Validate rejects thresholds the engine cannot work with
func (r Rules) Validate() error {
	c := r.Completion
	if c.PrimaryConcernID == "" {
		return errors.New("completion.primary_concern_id must be set")
	}
	if c.MinResponses < 1 {
		return fmt.Errorf("completion.min_responses must be at least 1, got %d", c.MinResponses)
	}
	if c.MaxResponses < c.MinResponses {
		return fmt.Errorf("completion.max_responses (%d) must not be below min_responses (%d)", c.MaxResponses, c.MinResponses)
	}
	if r.Emergency.QuestionID == "" {
		return errors.New("emergency.question_id must be set")
	}
	if r.Emergency.QuestionID == c.PrimaryConcernID {
		return errors.New("emergency.question_id must differ from completion.primary_concern_id")
	}
	for i, t := range r.Emergency.Severity {
		if t.QuestionID == "" {
			return fmt.Errorf("emergency.severity[%d].question_id must be set", i)
		}
	}
	return nil
}
