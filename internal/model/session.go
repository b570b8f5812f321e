package model

import "time"

// State is the questionnaire state machine state
type State string

const (
	StateInitializing State = "initializing"
	StateQuestioning  State = "questioning"
	StateGenerating   State = "generating"
	StateCompleted    State = "completed"
	StateEmergency    State = "emergency"
	StateError        State = "error"
)

// Terminal reports whether s hands control to a terminal callback
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateEmergency
}

// Session is the identity of one interview attempt. Responses and question
// history live in the ledger owned by the engine.
type Session struct {
	ID        string    `json:"id" bson:"_id"`
	Locale    string    `json:"locale" bson:"locale"`
	Seed      string    `json:"seed,omitempty" bson:"seed,omitempty"`
	StartedAt time.Time `json:"startedAt" bson:"startedAt"`
	Completed bool      `json:"completed" bson:"completed"`
}

// ErrorInfo describes a surfaced engine error
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is the observable engine state used for rendering
type Snapshot struct {
	SessionID       string             `json:"sessionId"`
	Version         uint64             `json:"version"`
	State           State              `json:"state"`
	CurrentQuestion *Question          `json:"currentQuestion,omitempty"`
	QuestionNumber  int                `json:"questionNumber"`
	CanGoBack       bool               `json:"canGoBack"`
	Responses       []QuestionResponse `json:"responses"`
	History         []Question         `json:"history"`
	Error           *ErrorInfo         `json:"error,omitempty"`
	StartedAt       time.Time          `json:"startedAt"`
	Completed       bool               `json:"completed"`
}
