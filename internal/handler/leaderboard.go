package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// LeaderboardHandler serves the public ranking routes. No session needed.
type LeaderboardHandler struct {
	board  Leaderboard
	logger *slog.Logger
}

func NewLeaderboardHandler(board Leaderboard, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, logger: logger}
}

type rankResponse struct {
	Rank *int64 `json:"rank"`
}

// HandleTop handles GET /leaderboard/top?limit=.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries, err := h.board.Top(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRank handles GET /leaderboard/rank/{userId}. Unranked users get
// {"rank": null}, not a 404.
func (h *LeaderboardHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	rank, err := h.board.Rank(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{Rank: rank})
}
