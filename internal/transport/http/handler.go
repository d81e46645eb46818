package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cricket-trivia-service/internal/app"
	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/slot"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Handler exposes the attempt use cases as a JSON API.
type Handler struct {
	service     *app.AttemptService
	malpractice *app.MalpracticeCounter
}

func NewHandler(service *app.AttemptService, malpractice *app.MalpracticeCounter) *Handler {
	return &Handler{service: service, malpractice: malpractice}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /v1/accounts", h.ensureAccount)
	mux.HandleFunc("GET /v1/accounts/{userID}", h.getAccount)
	mux.HandleFunc("GET /v1/accounts/{userID}/attempts", h.history)
	mux.HandleFunc("GET /v1/accounts/{userID}/attempts/{slotID}", h.getAttempt)
	mux.HandleFunc("PUT /v1/accounts/{userID}/attempts/{slotID}", h.putAttempt)
	mux.HandleFunc("POST /v1/accounts/{userID}/attempts/{slotID}/review", h.markReviewed)
	mux.HandleFunc("POST /v1/accounts/{userID}/violations", h.recordViolation)
	mux.HandleFunc("POST /v1/quizzes/{quizID}/submissions", h.submit)
	mux.HandleFunc("GET /v1/leaderboards/{slotID}", h.leaderboard)
	mux.HandleFunc("GET /v1/slots/current", h.currentSlot)
	mux.HandleFunc("GET /v1/stats", h.stats)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

type ensureAccountRequest struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl"`
	ReferralCode string `json:"referralCode"`
}

func (h *Handler) ensureAccount(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if !decode(w, r, &req) {
		return
	}
	acct, created, err := h.service.EnsureAccount(r.Context(), domain.Profile{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}, req.ReferralCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, acct)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.GetAccount(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.History(r.Context(), r.PathValue("userID"), r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.GetAttempt(r.Context(), r.PathValue("userID"), r.PathValue("slotID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// putAttempt commits an attempt built on the device, typically replayed from its outbox.
func (h *Handler) putAttempt(w http.ResponseWriter, r *http.Request) {
	var attempt domain.QuizAttempt
	if !decode(w, r, &attempt) {
		return
	}
	slotID := r.PathValue("slotID")
	if attempt.SlotID == "" {
		attempt.SlotID = slotID
	}
	if attempt.SlotID != slotID {
		writeError(w, r, &domain.ValidationError{Field: "slotId", Reason: "does not match the request path"})
		return
	}
	if attempt.Source == "" {
		attempt.Source = domain.SourcePrimary
	}
	result, err := h.service.Commit(r.Context(), r.PathValue("userID"), attempt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type submitRequest struct {
	UserID       string   `json:"userId"`
	Answers      []string `json:"answers"`
	TimingsMs    []int64  `json:"timingsMs"`
	Brand        string   `json:"brand"`
	Format       string   `json:"format"`
	Source       string   `json:"source"`
	Disqualified bool     `json:"disqualified"`
	Reason       string   `json:"reason"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	in := app.SubmitAnswers{
		UserID:    req.UserID,
		QuizID:    r.PathValue("quizID"),
		Answers:   req.Answers,
		TimingsMs: req.TimingsMs,
		Meta:      app.Meta{Brand: req.Brand, Format: req.Format, Source: req.Source},
	}
	if req.Disqualified || req.Reason != "" {
		in.Override = app.Disqualify(req.Reason)
	}
	result, err := h.service.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) markReviewed(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkReviewed(r.Context(), r.PathValue("userID"), r.PathValue("slotID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type violationResponse struct {
	Count      int  `json:"count"`
	Disqualify bool `json:"disqualify"`
	Persisted  bool `json:"persisted"`
}

// recordViolation answers with the best-known count even when it could not be stored,
// flagging that with persisted=false.
func (h *Handler) recordViolation(w http.ResponseWriter, r *http.Request) {
	count, err := h.malpractice.RecordViolation(r.Context(), r.PathValue("userID"))
	if err != nil && !errors.Is(err, app.ErrViolationNotPersisted) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("violation counted in degraded mode")
	}
	writeJSON(w, http.StatusOK, violationResponse{
		Count:      count,
		Disqualify: app.ShouldDisqualify(count),
		Persisted:  err == nil,
	})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("slotID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

type slotResponse struct {
	SlotID   string    `json:"slotId"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// currentSlot resolves the slot of now, or of the instant given in ?at= as epoch
// seconds, epoch milliseconds or an ISO-8601 string.
func (h *Handler) currentSlot(w http.ResponseWriter, r *http.Request) {
	cal := h.service.Calendar()
	id := h.service.CurrentSlot()
	if raw := r.URL.Query().Get("at"); raw != "" {
		var err error
		id, err = cal.IDFor(parseTimestamp(raw))
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	start, end, err := cal.Window(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponse{SlotID: id, StartsAt: start, EndsAt: end})
}

// parseTimestamp picks the timestamp variant from the shape of a query value. Integers
// of 13 digits or more are milliseconds.
func parseTimestamp(raw string) slot.Timestamp {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if len(strings.TrimPrefix(raw, "-")) >= 13 {
			return slot.Millis(n)
		}
		return slot.Seconds(float64(n))
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return slot.Seconds(f)
	}
	return slot.ISOString(raw)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body: " + err.Error(), Code: domain.CodeInvalidAttempt})
		return false
	}
	return true
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTimestamp), errors.Is(err, slot.ErrInvalidSlotID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConnectivity):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBackendRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := domain.Code(err)
	if errors.Is(err, slot.ErrInvalidSlotID) {
		code = domain.CodeInvalidAttempt
	}
	event := zerolog.Ctx(r.Context()).Info()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, RequestID: GetRequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
