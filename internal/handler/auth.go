package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/auth"
)

// stateCookie carries the OAuth state between login and callback.
const stateCookie = "oauth_state"

// AuthHandler handles the GitHub OAuth login flow and logout.
//
// OAUTH FLOW:
//
//  1. GET /auth/github/login
//     We generate a random state, store it in a short-lived cookie and
//     redirect the browser to GitHub's consent screen.
//
//  2. GET /auth/github/callback?code=...&state=...
//     GitHub redirects back. We compare the state parameter with the cookie
//     (login CSRF protection), exchange the code for an access token server
//     side, then hand the profile and token to the auth service. The service
//     creates or refreshes the user and seals the token for star pushes.
//
//  3. We set the session JWT as an HttpOnly cookie and redirect to the
//     frontend. JavaScript never sees the JWT or the GitHub token.
type AuthHandler struct {
	provider    OAuthProvider
	auth        Authenticator
	sessionTTL  time.Duration
	secure      bool
	frontendURL string
	logger      *slog.Logger
}

// AuthConfig holds the cookie and redirect settings for AuthHandler.
type AuthConfig struct {
	SessionTTL   time.Duration
	CookieSecure bool
	FrontendURL  string
}

func NewAuthHandler(provider OAuthProvider, authSvc Authenticator, cfg AuthConfig, logger *slog.Logger) *AuthHandler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = auth.DefaultTokenTTL
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "/"
	}
	return &AuthHandler{
		provider:    provider,
		auth:        authSvc,
		sessionTTL:  cfg.SessionTTL,
		secure:      cfg.CookieSecure,
		frontendURL: cfg.FrontendURL,
		logger:      logger,
	}
}

// HandleGitHubLogin redirects the browser to GitHub.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	// xid is URL-safe and unique; it only has to be unguessable for the
	// ten minutes the cookie lives.
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the flow started by HandleGitHubLogin.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	// The user clicked "Cancel" on GitHub.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, accessToken, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginWithGitHub(r.Context(), ghUser, accessToken)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubId", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// HandleLogout clears the session cookie. JWTs are stateless, so there is
// nothing to revoke server side; the token simply stops being sent.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
