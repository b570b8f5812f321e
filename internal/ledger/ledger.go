// Package ledger holds the ordered question history and response list of one
// interview attempt.
//
// The history is either the same length as the responses, or one longer when
// a question is displayed and still unanswered. Every mutation bumps the
// revision so that asynchronous results computed against an older ledger can
// be recognised and dropped.
package ledger

import (
	"errors"
	"fmt"

	"symptomcheck/internal/model"
)

var (
	// ErrInvariantViolation marks programmer errors: a correct caller never sees it
	ErrInvariantViolation = errors.New("ledger invariant violation")

	ErrAlreadyAnswered   = fmt.Errorf("%w: question already answered", ErrInvariantViolation)
	ErrDuplicateQuestion = fmt.Errorf("%w: question id already shown", ErrInvariantViolation)
	ErrNoCurrentQuestion = fmt.Errorf("%w: no question awaiting an answer", ErrInvariantViolation)
	ErrQuestionPending   = fmt.Errorf("%w: a question is still awaiting an answer", ErrInvariantViolation)
	ErrWrongQuestion     = fmt.Errorf("%w: response does not answer the current question", ErrInvariantViolation)
)

// Ledger is not safe for concurrent use; its owner serialises access
type Ledger struct {
	history   []model.Question
	responses []model.QuestionResponse
	shown     map[string]struct{}
	revision  uint64
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{shown: make(map[string]struct{})}
}

// Append records a question together with its answer. Used to seed a
// session with a response the patient gave before the interview started.
func (l *Ledger) Append(q model.Question, r model.QuestionResponse) error {
	if l.pending() {
		return ErrQuestionPending
	}
	if r.QuestionID != q.ID {
		return ErrWrongQuestion
	}
	if _, ok := l.shown[q.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAnswered, q.ID)
	}
	l.history = append(l.history, q.Clone())
	l.responses = append(l.responses, r.Clone())
	l.shown[q.ID] = struct{}{}
	l.revision++
	return nil
}

// Show displays the next question. The previous question must be answered.
func (l *Ledger) Show(q model.Question) error {
	if l.pending() {
		return ErrQuestionPending
	}
	if _, ok := l.shown[q.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateQuestion, q.ID)
	}
	l.history = append(l.history, q.Clone())
	l.shown[q.ID] = struct{}{}
	l.revision++
	return nil
}

// Answer records the response to the current question
func (l *Ledger) Answer(r model.QuestionResponse) error {
	cur := l.Current()
	if cur == nil {
		return ErrNoCurrentQuestion
	}
	if r.QuestionID != cur.ID {
		return fmt.Errorf("%w: got %s, current is %s", ErrWrongQuestion, r.QuestionID, cur.ID)
	}
	l.responses = append(l.responses, r.Clone())
	l.revision++
	return nil
}

// TruncateLast undoes the most recent answer. A trailing unanswered question
// is removed along with the response before it; when no question is pending
// only the last response is removed. It reports false and leaves the ledger
// untouched when fewer than two questions have been shown.
func (l *Ledger) TruncateLast() bool {
	if len(l.history) < 2 {
		return false
	}
	if l.pending() {
		last := l.history[len(l.history)-1]
		delete(l.shown, last.ID)
		l.history = l.history[:len(l.history)-1]
	}
	l.responses = l.responses[:len(l.responses)-1]
	l.revision++
	return true
}

// Retract removes the last response so the question it answered becomes
// current again. It reports false when a question is already pending.
func (l *Ledger) Retract() (model.QuestionResponse, bool) {
	if l.pending() || len(l.responses) == 0 {
		return model.QuestionResponse{}, false
	}
	last := l.responses[len(l.responses)-1]
	l.responses = l.responses[:len(l.responses)-1]
	l.revision++
	return last, true
}

// Current returns the question awaiting an answer, or nil
func (l *Ledger) Current() *model.Question {
	if !l.pending() {
		return nil
	}
	q := l.history[len(l.history)-1].Clone()
	return &q
}

// Last returns the most recent response, or nil
func (l *Ledger) Last() *model.QuestionResponse {
	if len(l.responses) == 0 {
		return nil
	}
	r := l.responses[len(l.responses)-1].Clone()
	return &r
}

// Shown reports whether a question id appears in the history
func (l *Ledger) Shown(id string) bool {
	_, ok := l.shown[id]
	return ok
}

// Responses returns a deep copy of the responses in answer order
func (l *Ledger) Responses() []model.QuestionResponse {
	return model.CloneResponses(l.responses)
}

// History returns a deep copy of the shown questions
func (l *Ledger) History() []model.Question {
	out := make([]model.Question, len(l.history))
	for i, q := range l.history {
		out[i] = q.Clone()
	}
	return out
}

// Len is the number of questions shown
func (l *Ledger) Len() int { return len(l.history) }

// Answered is the number of responses recorded
func (l *Ledger) Answered() int { return len(l.responses) }

// Revision changes on every mutation
func (l *Ledger) Revision() uint64 { return l.revision }

func (l *Ledger) pending() bool { return len(l.history) > len(l.responses) }
