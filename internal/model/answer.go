package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AnswerKind tags which field of Answer is set
type AnswerKind string

const (
	AnswerText   AnswerKind = "text"
	AnswerNumber AnswerKind = "number"
	AnswerBool   AnswerKind = "bool"
	AnswerList   AnswerKind = "list"
)

// Answer holds exactly one of a string, number, boolean or ordered list of
// strings. The zero value is an absent answer. On the wire it is the bare
// JSON value.
type Answer struct {
	Kind   AnswerKind `bson:"kind,omitempty"`
	Text   string     `bson:"text,omitempty"`
	Number float64    `bson:"number,omitempty"`
	Bool   bool       `bson:"bool,omitempty"`
	List   []string   `bson:"list,omitempty"`
}

func TextAnswer(s string) Answer { return Answer{Kind: AnswerText, Text: s} }

func NumberAnswer(n float64) Answer { return Answer{Kind: AnswerNumber, Number: n} }

func BoolAnswer(b bool) Answer { return Answer{Kind: AnswerBool, Bool: b} }

func ListAnswer(vs ...string) Answer {
	return Answer{Kind: AnswerList, List: append([]string(nil), vs...)}
}

// IsZero reports whether the answer is absent
func (a Answer) IsZero() bool {
	return a.Kind == ""
}

// Values flattens the answer into strings, used for keyword screening
func (a Answer) Values() []string {
	switch a.Kind {
	case AnswerText:
		return []string{a.Text}
	case AnswerList:
		return append([]string(nil), a.List...)
	case AnswerNumber:
		return []string{strconv.FormatFloat(a.Number, 'f', -1, 64)}
	case AnswerBool:
		return []string{strconv.FormatBool(a.Bool)}
	}
	return nil
}

// String renders the answer for prompts and terminal output
func (a Answer) String() string {
	switch a.Kind {
	case AnswerList:
		b, _ := json.Marshal(a.List)
		return string(b)
	case "":
		return "<none>"
	}
	return a.Values()[0]
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerText:
		return json.Marshal(a.Text)
	case AnswerNumber:
		return json.Marshal(a.Number)
	case AnswerBool:
		return json.Marshal(a.Bool)
	case AnswerList:
		if a.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.List)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
	case '[':
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("list answers must contain strings: %w", err)
		}
		*a = ListAnswer(vs...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*a = BoolAnswer(b)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported answer value %s", string(data))
		}
		*a = NumberAnswer(n)
	}
	return nil
}

// QuestionResponse is an answered question
type QuestionResponse struct {
	QuestionID string    `json:"questionId" bson:"questionId"`
	Answer     Answer    `json:"answer" bson:"answer"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// Clone returns a deep copy of r
func (r QuestionResponse) Clone() QuestionResponse {
	c := r
	if r.Answer.List != nil {
		c.Answer.List = append([]string(nil), r.Answer.List...)
	}
	return c
}

// CloneResponses deep-copies a response slice. The result is never nil.
func CloneResponses(rs []QuestionResponse) []QuestionResponse {
	out := make([]QuestionResponse, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
