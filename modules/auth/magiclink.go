package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/lexforge/lexforge/pkg/logger"
	"github.com/lexforge/lexforge/pkg/token"
)

// MagicLinkConfig tunes magic-link issuance.
type MagicLinkConfig struct {
	// Secret signs magic-link tokens. Rotating it invalidates all
	// outstanding links, which is the intended kill switch.
	Secret string `env:"AUTH_SECRET,required"`

	// TTL bounds how long a link stays valid.
	TTL time.Duration `env:"MAGIC_LINK_TTL" envDefault:"15m"`

	// BaseURL is the public address the verify link points at.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

// magicPayload is the signed token body. Short JSON keys keep the link
// compact.
type magicPayload struct {
	Email     string `json:"e"`
	ExpiresAt int64  `json:"x"`
}

// MagicLinkService issues and verifies magic-link logins. Tokens are
// stateless: a link is valid until its embedded expiry, and verification
// needs no lookup table.
type MagicLinkService struct {
	cfg    MagicLinkConfig
	users  UserStore
	mailer Mailer
	log    *slog.Logger
	now    func() time.Time
}

// NewMagicLinkService wires a magic-link service. Panics on nil required
// dependencies.
func NewMagicLinkService(cfg MagicLinkConfig, users UserStore, mailer Mailer, log *slog.Logger) *MagicLinkService {
	if cfg.Secret == "" {
		panic("auth: magic link secret is required")
	}
	if users == nil {
		panic("auth: UserStore is required")
	}
	if mailer == nil {
		panic("auth: Mailer is required")
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}

	return &MagicLinkService{cfg: cfg, users: users, mailer: mailer, log: log, now: time.Now}
}

// RequestLink emails a login link to the address. Unknown addresses get a
// link too; the account is created when the link is used, not before.
func (s *MagicLinkService) RequestLink(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	tok, err := token.Generate(magicPayload{
		Email:     email,
		ExpiresAt: s.now().Add(s.cfg.TTL).Unix(),
	}, s.cfg.Secret)
	if err != nil {
		return fmt.Errorf("auth: generate magic link token: %w", err)
	}

	link := fmt.Sprintf("%s/auth/magic-link/verify?token=%s",
		strings.TrimSuffix(s.cfg.BaseURL, "/"), url.QueryEscape(tok))

	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return fmt.Errorf("auth: send magic link: %w", err)
	}

	s.log.Info("magic link requested",
		slog.String("email", email),
		logger.Component("auth"),
	)
	return nil
}

// VerifyLink validates the token and logs the user in, registering the
// account on first use.
func (s *MagicLinkService) VerifyLink(ctx context.Context, tok string) (*User, error) {
	payload, err := token.Parse[magicPayload](tok, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if s.now().Unix() > payload.ExpiresAt {
		return nil, ErrTokenExpired
	}

	user, err := s.users.GetOrCreate(ctx, payload.Email)
	if err != nil {
		return nil, err
	}

	user, err = s.users.Update(ctx, user.ID, func(u *User) error {
		now := s.now().UTC()
		u.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("magic link login",
		logger.UserID(user.ID),
		logger.Component("auth"),
	)
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
