package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RepositoryHandler serves the feed and repository management routes.
type RepositoryHandler struct {
	feed   FeedGenerator
	repos  RepositoryManager
	logger *slog.Logger
}

func NewRepositoryHandler(feed FeedGenerator, repos RepositoryManager, logger *slog.Logger) *RepositoryHandler {
	return &RepositoryHandler{feed: feed, repos: repos, logger: logger}
}

// submitRequest names the repository by its GitHub "owner/name".
type submitRequest struct {
	ExternalRepoID string `json:"externalRepoId"`
	Pitch          string `json:"pitch"`
}

type repositoryIDResponse struct {
	RepositoryID string `json:"repositoryId"`
}

type syncResponse struct {
	Stars    int64     `json:"stars"`
	SyncedAt time.Time `json:"syncedAt"`
}

// HandleFeed handles GET /repository/feed?cursor=&limit=.
// A missing limit falls through to the service default; oversized limits are
// clamped there rather than rejected.
func (h *RepositoryHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.feed.GenerateFeed(r.Context(), uid, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleSubmit handles POST /repository.
func (h *RepositoryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	repo, err := h.repos.Submit(r.Context(), uid, req.ExternalRepoID, req.Pitch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, repositoryIDResponse{RepositoryID: repo.ID})
}

// HandleUpdatePitch handles PATCH /repository/pitch. Only the owner may edit.
func (h *RepositoryHandler) HandleUpdatePitch(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	repo, err := h.repos.UpdatePitch(r.Context(), uid, req.ExternalRepoID, req.Pitch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repositoryIDResponse{RepositoryID: repo.ID})
}

// HandleSync handles POST /repository/{id}/sync.
func (h *RepositoryHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.repos.Sync(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Stars: res.Stars, SyncedAt: res.SyncedAt})
}
