package auth

import (
	"context"
	"log/slog"

	"github.com/lexforge/lexforge/pkg/logger"
)

// Mailer delivers magic-link emails.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogMailer writes the link to the log instead of sending mail. Local
// development only.
type LogMailer struct {
	Log *slog.Logger
}

func (m *LogMailer) SendMagicLink(ctx context.Context, email, link string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("magic link issued",
		slog.String("email", email),
		slog.String("link", link),
		logger.Component("auth"),
	)
	return nil
}
