package http

import (
	"net/http"

	"cricket-trivia-service/internal/app"
	"github.com/rs/zerolog"
)

// NewRouter wires the REST API and the leaderboard stream behind the request-id and
// CORS middleware.
func NewRouter(service *app.AttemptService, malpractice *app.MalpracticeCounter, logger zerolog.Logger, origins []string) http.Handler {
	mux := http.NewServeMux()
	NewHandler(service, malpractice).Register(mux)
	mux.HandleFunc("GET /ws/leaderboard", NewWSHandler(service).ServeWS)

	return RequestID(logger)(CORS(origins)(mux))
}
