package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
)

const defaultLeaderboardLimit = 20

// Handler exposes the completion and gamification use cases over REST.
type Handler struct {
	completion  *app.CompletionService
	progression *app.ProgressionService
	badges      *app.BadgeService
	leaderboard *app.LeaderboardReconciler
	log         *logger.Logger
}

func NewHandler(
	completion *app.CompletionService,
	progression *app.ProgressionService,
	badges *app.BadgeService,
	leaderboard *app.LeaderboardReconciler,
	log *logger.Logger,
) *Handler {
	return &Handler{
		completion:  completion,
		progression: progression,
		badges:      badges,
		leaderboard: leaderboard,
		log:         log,
	}
}

// Register mounts all routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/attempts/{id}/complete", h.completeAttempt)
	mux.HandleFunc("POST /v1/users/{id}/progress/recompute", h.recomputeProgress)
	mux.HandleFunc("POST /v1/users/{id}/badges/check", h.checkBadges)
	mux.HandleFunc("GET /v1/quizzes/{id}/leaderboard", h.quizLeaderboard)
}

type completeAttemptRequest struct {
	Answers []domain.SubmittedAnswer `json:"answers"`
}

type badgeCheckRequest struct {
	QuizID    string `json:"quizId"`
	AttemptID string `json:"attemptId"`
}

type badgeCheckResponse struct {
	Awarded []string `json:"awarded"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")
	callerID := r.Header.Get("X-User-ID")
	if callerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing X-User-ID header"})
		return
	}

	var req completeAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.completion.CompleteAttempt(r.Context(), attemptID, callerID, req.Answers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) recomputeProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	result, err := h.progression.Recompute(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) checkBadges(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req badgeCheckRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	awarded, err := h.badges.CheckAndAward(r.Context(), userID, app.BadgeContext{
		QuizID:    req.QuizID,
		AttemptID: req.AttemptID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if awarded == nil {
		awarded = []string{}
	}
	writeJSON(w, http.StatusOK, badgeCheckResponse{Awarded: awarded})
}

func (h *Handler) quizLeaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	snapshot, err := h.leaderboard.Top(r.Context(), quizID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrEntryNotFound),
		errors.Is(err, domain.ErrProgressNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
