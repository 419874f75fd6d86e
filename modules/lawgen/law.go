package lawgen

import (
	"time"

	"github.com/google/uuid"
)

// Credit prices of the metered operations.
const (
	GenerationCost int64 = 10
	SearchCost     int64 = 1
)

// Law is a generated law owned by a single user.
type Law struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptStatus marks how a generation attempt ended.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// GenerationAttempt records a single metered generation, successful or
// not. Failed attempts keep their charge; the record is what an operator
// reconciles a complaint against.
type GenerationAttempt struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"-"`
	Prompt         string        `json:"prompt"`
	Status         AttemptStatus `json:"status"`
	LawID          *uuid.UUID    `json:"law_id,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	CreditsCharged int64         `json:"credits_charged"`
	Model          string        `json:"model,omitempty"`
	TokensUsed     int           `json:"tokens_used"`
	DurationMS     int64         `json:"duration_ms"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Draft is the parsed model output before it becomes a persisted Law.
type Draft struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (d *Draft) validate() error {
	if d.Title == "" || d.Content == "" {
		return ErrInvalidDraft
	}
	return nil
}
