package model

import "github.com/golang-jwt/jwt/v5"

// PatientClaims are JWT claims scoping a patient to one assessment
type PatientClaims struct {
	AssessmentID string `json:"assessmentId"`
	jwt.RegisteredClaims
}

// StartAssessmentRequest is the request body for creating an assessment
type StartAssessmentRequest struct {
	Seed   string `json:"seed,omitempty" validate:"omitempty,max=2000"`
	Locale string `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// StartAssessmentResponse is returned after an assessment is created
type StartAssessmentResponse struct {
	AssessmentID string    `json:"assessmentId"`
	Token        string    `json:"token"`
	Snapshot     *Snapshot `json:"snapshot"`
}

// SubmitAnswerRequest is the request body for answering the current question
type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId" validate:"required,max=128"`
	Answer     Answer `json:"answer"`
}

// RetryResponse is returned after recovering from an error state
type RetryResponse struct {
	Snapshot  *Snapshot         `json:"snapshot"`
	Retracted *QuestionResponse `json:"retracted,omitempty"`
}
