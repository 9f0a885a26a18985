package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminHandler serves /admin routes. The router puts them behind
// middleware.RequireAdmin; the handlers only read the actor id.
type AdminHandler struct {
	mod    Moderator
	logger *slog.Logger
}

func NewAdminHandler(mod Moderator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{mod: mod, logger: logger}
}

// HandleToggleBlock handles POST /admin/users/{id}/block.
func (h *AdminHandler) HandleToggleBlock(w http.ResponseWriter, r *http.Request) {
	actor, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status, err := h.mod.ToggleBlock(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleResetTrust handles POST /admin/users/{id}/reset-trust.
func (h *AdminHandler) HandleResetTrust(w http.ResponseWriter, r *http.Request) {
	actor, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status, err := h.mod.ResetTrust(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleAbuseLogs handles GET /admin/abuse-logs?limit=&offset=.
func (h *AdminHandler) HandleAbuseLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	logs, err := h.mod.ListAbuseLogs(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleFlaggedUsers handles GET /admin/flagged-users?limit=.
func (h *AdminHandler) HandleFlaggedUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	users, err := h.mod.ListFlaggedUsers(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
