package model

import "time"

// Outcome is how an interview ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeEmergency Outcome = "emergency"
)

// AssessmentRecord is the persisted ledger of a finished interview, handed to
// the symptom analyzer
type AssessmentRecord struct {
	ID         string             `json:"id" bson:"_id"`
	SessionID  string             `json:"sessionId" bson:"sessionId"`
	Outcome    Outcome            `json:"outcome" bson:"outcome"`
	Locale     string             `json:"locale" bson:"locale"`
	Seed       string             `json:"seed,omitempty" bson:"seed,omitempty"`
	History    []Question         `json:"history" bson:"history"`
	Responses  []QuestionResponse `json:"responses" bson:"responses"`
	StartedAt  time.Time          `json:"startedAt" bson:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt" bson:"finishedAt"`
}

// OutcomeStats aggregates finished interviews
type OutcomeStats struct {
	Completed        int64   `json:"completed"`
	Emergency        int64   `json:"emergency"`
	TotalResponses   int64   `json:"totalResponses"`
	AverageResponses float64 `json:"averageResponses"`
}
