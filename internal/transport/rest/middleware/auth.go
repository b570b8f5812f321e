package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"symptomcheck/internal/service"
)

type contextKey string

const AssessmentIDKey contextKey = "assessmentId"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequirePatient validates the patient JWT from the Authorization header or
// the token query param. The token must belong to the {id} in the route.
func (m *AuthMiddleware) RequirePatient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			// Try query param for WebSocket
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization")
			return
		}

		claims, err := m.authSvc.ValidatePatientToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if id, ok := mux.Vars(r)["id"]; ok && id != claims.AssessmentID {
			writeError(w, http.StatusForbidden, "token not valid for this assessment")
			return
		}

		ctx := context.WithValue(r.Context(), AssessmentIDKey, claims.AssessmentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAssessmentID extracts the assessment ID from context
func GetAssessmentID(ctx context.Context) string {
	if v := ctx.Value(AssessmentIDKey); v != nil {
		return v.(string)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
