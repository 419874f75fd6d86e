package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lexforge/lexforge/pkg/logger"
	"github.com/lexforge/lexforge/pkg/token"
)

// GoogleConfig holds OAuth client credentials.
type GoogleConfig struct {
	ClientID     string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string        `env:"GOOGLE_REDIRECT_URL"`
	StateTTL     time.Duration `env:"GOOGLE_STATE_TTL" envDefault:"10m"`
}

// Enabled reports whether Google login is configured. The router skips
// the Google routes when it is not.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// statePayload is the signed CSRF state round-tripped through Google.
type statePayload struct {
	Nonce     string `json:"n"`
	ExpiresAt int64  `json:"x"`
}

// googleProfile is the subset of the userinfo response we consume.
type googleProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleService runs the Google OAuth login flow. The state parameter is
// a signed, expiring token, so the flow needs no server-side state store.
type GoogleService struct {
	oauth  *oauth2.Config
	users  UserStore
	secret string
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	// fetchProfile is swapped in tests to avoid hitting Google.
	fetchProfile func(ctx context.Context, tok *oauth2.Token) (*googleProfile, error)
}

// NewGoogleService wires the Google login flow. The signing secret is
// shared with the magic-link service so one rotation invalidates both.
func NewGoogleService(cfg GoogleConfig, secret string, users UserStore, log *slog.Logger) *GoogleService {
	if !cfg.Enabled() {
		panic("auth: google oauth client credentials are required")
	}
	if secret == "" {
		panic("auth: signing secret is required")
	}
	if users == nil {
		panic("auth: UserStore is required")
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	s := &GoogleService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		users:  users,
		secret: secret,
		ttl:    cfg.StateTTL,
		log:    log,
		now:    time.Now,
	}
	s.fetchProfile = s.fetchProfileHTTP
	return s
}

// AuthURL returns the Google consent page URL with a fresh signed state.
func (s *GoogleService) AuthURL() (string, error) {
	state, err := token.Generate(statePayload{
		Nonce:     fmt.Sprintf("%d", s.now().UnixNano()),
		ExpiresAt: s.now().Add(s.ttl).Unix(),
	}, s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: generate oauth state: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// HandleCallback verifies the state, exchanges the code, and logs the
// user in, registering the account on first use.
func (s *GoogleService) HandleCallback(ctx context.Context, state, code string) (*User, error) {
	payload, err := token.Parse[statePayload](state, s.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthStateMismatch, err)
	}
	if s.now().Unix() > payload.ExpiresAt {
		return nil, ErrOAuthStateMismatch
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}

	profile, err := s.fetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: profile has no email", ErrOAuthExchange)
	}

	user, err := s.users.GetOrCreate(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	user, err = s.users.Update(ctx, user.ID, func(u *User) error {
		if u.Name == "" {
			u.Name = profile.Name
		}
		u.GoogleID = profile.ID
		now := s.now().UTC()
		u.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("google login",
		logger.UserID(user.ID),
		logger.Component("auth"),
	)
	return user, nil
}

func (s *GoogleService) fetchProfileHTTP(ctx context.Context, tok *oauth2.Token) (*googleProfile, error) {
	resp, err := s.oauth.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch profile: %w", ErrOAuthExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %w", ErrOAuthExchange, err)
	}

	var profile googleProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %w", ErrOAuthExchange, err)
	}
	return &profile, nil
}
