package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/starswipe/internal/model"
)

// SwipeHandler serves POST /swipe.
type SwipeHandler struct {
	swipes Swiper
	logger *slog.Logger
}

func NewSwipeHandler(swipes Swiper, logger *slog.Logger) *SwipeHandler {
	return &SwipeHandler{swipes: swipes, logger: logger}
}

type swipeRequest struct {
	RepositoryID string          `json:"repositoryId"`
	Type         model.SwipeType `json:"type"`
}

// HandleSwipe records a STAR or SKIP for the caller.
//
// The client IP and user agent are stored with the swipe for abuse review.
// RealIP middleware has already rewritten RemoteAddr from proxy headers.
func (h *SwipeHandler) HandleSwipe(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req swipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	meta := model.ClientMeta{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
	result, err := h.swipes.ProcessSwipe(r.Context(), uid, req.RepositoryID, req.Type, meta)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// clientIP drops the port RemoteAddr carries when no proxy header was
// present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
