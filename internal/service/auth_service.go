package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"symptomcheck/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and checks the session token that scopes a patient to
// one assessment
type AuthService struct {
	jwtSecret []byte
	ttl       time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		ttl:       ttl,
	}
}

// GeneratePatientToken creates an assessment-scoped token
func (s *AuthService) GeneratePatientToken(assessmentID string) (string, error) {
	now := time.Now()
	claims := &model.PatientClaims{
		AssessmentID: assessmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   assessmentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidatePatientToken validates a patient JWT and returns claims
func (s *AuthService) ValidatePatientToken(tokenString string) (*model.PatientClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.PatientClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.PatientClaims)
	if !ok || !token.Valid || claims.AssessmentID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
