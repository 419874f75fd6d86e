package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lexforge/lexforge/pkg/logger"
)

// RouterConfig wires the auth HTTP surface. Google is optional; pass a
// nil GoogleService to disable those routes.
type RouterConfig struct {
	MagicLink *MagicLinkService
	Google    *GoogleService
	Sessions  *SessionManager

	// LoginRedirectURL is where the browser lands after a successful
	// login. Empty means respond with JSON instead of redirecting.
	LoginRedirectURL string

	Logger *slog.Logger
}

// Router mounts the auth endpoints.
func Router(cfg RouterConfig) chi.Router {
	if cfg.MagicLink == nil {
		panic("auth: RouterConfig.MagicLink is required")
	}
	if cfg.Sessions == nil {
		panic("auth: RouterConfig.Sessions is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscard()
	}

	h := &httpHandler{cfg: cfg, log: log}

	r := chi.NewRouter()
	r.Post("/magic-link", h.requestMagicLink)
	r.Get("/magic-link/verify", h.verifyMagicLink)
	if cfg.Google != nil {
		r.Get("/google", h.googleRedirect)
		r.Get("/google/callback", h.googleCallback)
	}
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	return r
}

type httpHandler struct {
	cfg RouterConfig
	log *slog.Logger
}

func (h *httpHandler) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.cfg.MagicLink.RequestLink(r.Context(), req.Email)
	switch {
	case errors.Is(err, ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid email address")
	case err != nil:
		h.serverError(w, r, err)
	default:
		// Accepted regardless of whether the address has an account, so
		// the endpoint cannot be used to probe for registered emails.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "link sent"})
	}
}

func (h *httpHandler) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	user, err := h.cfg.MagicLink.VerifyLink(r.Context(), r.URL.Query().Get("token"))
	switch {
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "link expired, request a new one")
		return
	case errors.Is(err, ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid link")
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	h.finishLogin(w, r, user)
}

func (h *httpHandler) googleRedirect(w http.ResponseWriter, r *http.Request) {
	url, err := h.cfg.Google.AuthURL()
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *httpHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, err := h.cfg.Google.HandleCallback(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, ErrOAuthStateMismatch):
		writeError(w, http.StatusUnauthorized, "state verification failed")
		return
	case errors.Is(err, ErrOAuthExchange):
		writeError(w, http.StatusBadGateway, "google login failed, try again")
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	h.finishLogin(w, r, user)
}

func (h *httpHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.cfg.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *httpHandler) finishLogin(w http.ResponseWriter, r *http.Request, user *User) {
	if err := h.cfg.Sessions.IssueCookie(w, user.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	if h.cfg.LoginRedirectURL != "" {
		http.Redirect(w, r, h.cfg.LoginRedirectURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *httpHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("auth request failed",
		slog.String("path", r.URL.Path),
		logger.Error(err),
		logger.Component("auth"),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
