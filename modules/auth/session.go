package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lexforge/lexforge/pkg/token"
)

// SessionConfig tunes the session cookie.
type SessionConfig struct {
	// Secret signs session cookies; independent of the magic-link
	// secret so sessions survive a link-secret rotation.
	Secret string `env:"SESSION_SECRET,required"`

	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"lf_session"`
	Secure     bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
}

// sessionPayload is the signed cookie body.
type sessionPayload struct {
	UserID    uuid.UUID `json:"u"`
	ExpiresAt int64     `json:"x"`
}

type ctxKey struct{}

// SessionManager issues and verifies signed session cookies.
type SessionManager struct {
	cfg   SessionConfig
	users UserStore
	now   func() time.Time
}

// NewSessionManager wires a session manager. Panics on missing secret or
// nil store.
func NewSessionManager(cfg SessionConfig, users UserStore) *SessionManager {
	if cfg.Secret == "" {
		panic("auth: session secret is required")
	}
	if users == nil {
		panic("auth: UserStore is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "lf_session"
	}
	return &SessionManager{cfg: cfg, users: users, now: time.Now}
}

// IssueCookie sets a signed session cookie for the user.
func (m *SessionManager) IssueCookie(w http.ResponseWriter, userID uuid.UUID) error {
	tok, err := token.Generate(sessionPayload{
		UserID:    userID,
		ExpiresAt: m.now().Add(m.cfg.TTL).Unix(),
	}, m.cfg.Secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware resolves the session cookie into a User and stores it in
// the request context. Requests without a valid session pass through
// anonymous; handlers gate with UserFromContext.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cfg.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		payload, err := token.Parse[sessionPayload](cookie.Value, m.cfg.Secret)
		if err != nil || m.now().Unix() > payload.ExpiresAt {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.ByID(r.Context(), payload.UserID)
		if err != nil {
			// Deleted account with a live cookie; treat as anonymous.
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*User)
	return user, ok
}
