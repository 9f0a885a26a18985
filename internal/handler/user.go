package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	profiles Profiles
	logger   *slog.Logger
}

func NewUserHandler(profiles Profiles, logger *slog.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, logger: logger}
}

// HandleMe handles GET /user/me.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	profile, err := h.profiles.Me(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleMyRepos handles GET /user/me/repos.
func (h *UserHandler) HandleMyRepos(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	repos, err := h.profiles.MyRepos(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HandlePublic handles GET /user/{id}.
func (h *UserHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Public(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
