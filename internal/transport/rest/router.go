package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"symptomcheck/internal/service"
	"symptomcheck/internal/transport/rest/handler"
	"symptomcheck/internal/transport/rest/middleware"
	"symptomcheck/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	AssessmentService *service.AssessmentService
	WSHub             *ws.Hub
	AllowedOrigins    []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	assessmentHandler := handler.NewAssessmentHandler(c.AssessmentService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.AssessmentService, c.AllowedOrigins)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/assessments", assessmentHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/stats", assessmentHandler.Stats).Methods("GET", "OPTIONS")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/assessments/{id}", wsHandler.AssessmentWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Patient routes (token scoped to {id})
	patientRoutes := v1.NewRoute().Subrouter()
	patientRoutes.Use(authMW.RequirePatient)

	patientRoutes.HandleFunc("/assessments/{id}", assessmentHandler.Get).Methods("GET", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}", assessmentHandler.Discard).Methods("DELETE", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/answers", assessmentHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/back", assessmentHandler.Back).Methods("POST", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/retry", assessmentHandler.Retry).Methods("POST", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/restart", assessmentHandler.Restart).Methods("POST", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/record", assessmentHandler.Record).Methods("GET", "OPTIONS")
	patientRoutes.HandleFunc("/assessments/{id}/questions/{questionId}/options", assessmentHandler.Options).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
			if allowedMethods == "" {
				allowedMethods = "GET, POST, DELETE, OPTIONS"
			}

			allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
			if allowedHeaders == "" {
				allowedHeaders = "Content-Type, Authorization"
			}

			if origin := allowOrigin(allowed, r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if origin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed. An empty list allows everything.
func allowOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && a == origin {
			return origin
		}
	}
	return ""
}
