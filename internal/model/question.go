package model

import (
	"errors"
	"fmt"
)

// QuestionKind defines how a question is answered
type QuestionKind string

const (
	KindSingleChoice   QuestionKind = "single_choice"
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindBoolean        QuestionKind = "boolean"
	KindNumberInput    QuestionKind = "number_input"
	KindScale          QuestionKind = "scale"
	KindTextInput      QuestionKind = "text_input"

	// Options for generated kinds are produced lazily by the generation service
	KindGeneratedSingleChoice   QuestionKind = "generated_single_choice"
	KindGeneratedMultipleChoice QuestionKind = "generated_multiple_choice"
	KindGeneratedTextInput      QuestionKind = "generated_text_input"
)

// Well-known question identifiers
const (
	PrimaryConcernID    = "primary_concern"
	EmergencyQuestionID = "emergency_symptoms"

	// NoneSentinel is the option value meaning "none of the above"
	NoneSentinel = "none"
)

var (
	ErrInvalidAnswer = errors.New("answer does not fit question")
	ErrUnknownKind   = errors.New("unknown question kind")
)

// Valid reports whether k is one of the known kinds
func (k QuestionKind) Valid() bool {
	switch k {
	case KindSingleChoice, KindMultipleChoice, KindBoolean, KindNumberInput, KindScale, KindTextInput,
		KindGeneratedSingleChoice, KindGeneratedMultipleChoice, KindGeneratedTextInput:
		return true
	}
	return false
}

// Generated reports whether the options for k come from the generation service
func (k QuestionKind) Generated() bool {
	return k == KindGeneratedSingleChoice || k == KindGeneratedMultipleChoice || k == KindGeneratedTextInput
}

// Option is a selectable answer for choice questions
type Option struct {
	ID    string `json:"id" bson:"id"`
	Label string `json:"label" bson:"label"`
	Value string `json:"value" bson:"value"`
}

// Question is a single prompt shown to the patient. A shown question is
// never mutated; regeneration produces a new value.
type Question struct {
	ID      string       `json:"id" bson:"id"`
	Text    string       `json:"text" bson:"text"`
	Kind    QuestionKind `json:"kind" bson:"kind"`
	Options []Option     `json:"options,omitempty" bson:"options,omitempty"`
	Min     *float64     `json:"min,omitempty" bson:"min,omitempty"` // number_input, scale
	Max     *float64     `json:"max,omitempty" bson:"max,omitempty"` // number_input, scale
}

// Bounds is a helper for building numeric questions
func Bounds(lo, hi float64) (*float64, *float64) {
	return &lo, &hi
}

// Clone returns a deep copy of q
func (q Question) Clone() Question {
	c := q
	if q.Options != nil {
		c.Options = append([]Option(nil), q.Options...)
	}
	if q.Min != nil {
		v := *q.Min
		c.Min = &v
	}
	if q.Max != nil {
		v := *q.Max
		c.Max = &v
	}
	return c
}

// Validate checks the structural shape of a question produced by a generator
func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question has no id")
	}
	if q.Text == "" {
		return fmt.Errorf("question %s has no text", q.ID)
	}
	if !q.Kind.Valid() {
		return fmt.Errorf("question %s: %w: %q", q.ID, ErrUnknownKind, q.Kind)
	}
	if (q.Kind == KindSingleChoice || q.Kind == KindMultipleChoice) && len(q.Options) == 0 {
		return fmt.Errorf("question %s: choice question without options", q.ID)
	}
	return nil
}

func (q *Question) hasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func (q *Question) inBounds(v float64) bool {
	if q.Min != nil && v < *q.Min {
		return false
	}
	if q.Max != nil && v > *q.Max {
		return false
	}
	return true
}

// ValidateAnswer checks that the answer shape fits the question kind
func (q *Question) ValidateAnswer(a Answer) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: question %s (%s): %s", ErrInvalidAnswer, q.ID, q.Kind, reason)
	}

	switch q.Kind {
	case KindSingleChoice:
		if a.Kind != AnswerText {
			return invalid("expected a single option value")
		}
		if !q.hasOption(a.Text) {
			return invalid(fmt.Sprintf("unknown option %q", a.Text))
		}
	case KindMultipleChoice:
		if a.Kind != AnswerList {
			return invalid("expected a list of option values")
		}
		for _, v := range a.List {
			if !q.hasOption(v) {
				return invalid(fmt.Sprintf("unknown option %q", v))
			}
		}
	case KindGeneratedMultipleChoice:
		if a.Kind != AnswerList {
			return invalid("expected a list of option values")
		}
	case KindBoolean:
		if a.Kind != AnswerBool {
			return invalid("expected true or false")
		}
	case KindNumberInput, KindScale:
		if a.Kind != AnswerNumber {
			return invalid("expected a number")
		}
		if !q.inBounds(a.Number) {
			return invalid("number out of range")
		}
	case KindTextInput, KindGeneratedTextInput, KindGeneratedSingleChoice:
		if a.Kind != AnswerText || a.Text == "" {
			return invalid("expected non-empty text")
		}
	default:
		return fmt.Errorf("question %s: %w: %q", q.ID, ErrUnknownKind, q.Kind)
	}
	return nil
}
