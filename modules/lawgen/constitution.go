package lawgen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConstitutionCost is the credit price of generating or regenerating a
// constitutional framework.
const ConstitutionCost int64 = 50

// ConstitutionRequest describes the network state the constitution is
// drafted for. Every field is optional; Name defaults to
// "The Network State".
type ConstitutionRequest struct {
	Name       string `json:"name"`
	Population string `json:"population"`
	Geography  string `json:"geography"`
	FocusAreas string `json:"focus_areas"`
}

func (r *ConstitutionRequest) normalize() {
	if r.Name == "" {
		r.Name = "The Network State"
	}
	if r.Geography == "" {
		r.Geography = "Digital-first with physical nodes"
	}
}

// Constitution is a user's constitutional framework. Each user has at
// most one; regeneration replaces the previous version in place.
type Constitution struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"-"`
	Name       string    `json:"name"`
	Preamble   string    `json:"preamble"`
	Rights     string    `json:"rights"`
	Structure  string    `json:"structure"`
	Amendments string    `json:"amendments"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConstitutionDraft is the parsed model output before it becomes a
// persisted Constitution.
type ConstitutionDraft struct {
	Preamble   string `json:"preamble"`
	Rights     string `json:"rights"`
	Structure  string `json:"structure"`
	Amendments string `json:"amendments"`
}

func (d *ConstitutionDraft) validate() error {
	if d.Preamble == "" || d.Structure == "" {
		return ErrInvalidDraft
	}
	return nil
}

// ConstitutionGeneration is the product of one constitution model call.
type ConstitutionGeneration struct {
	Draft      ConstitutionDraft
	Model      string
	TokensUsed int
}

// ConstitutionGenerator drafts a constitutional framework from a
// structured request.
type ConstitutionGenerator interface {
	GenerateConstitution(ctx context.Context, req ConstitutionRequest) (*ConstitutionGeneration, error)
}

// ConstitutionGeneratorFunc adapts a function to the
// ConstitutionGenerator interface.
type ConstitutionGeneratorFunc func(ctx context.Context, req ConstitutionRequest) (*ConstitutionGeneration, error)

func (f ConstitutionGeneratorFunc) GenerateConstitution(ctx context.Context, req ConstitutionRequest) (*ConstitutionGeneration, error) {
	return f(ctx, req)
}

// constitutionPrompt renders the normalized request as the user turn of
// the drafting conversation.
func constitutionPrompt(req ConstitutionRequest) string {
	return fmt.Sprintf(
		"Create a comprehensive constitutional framework for a network state.\n"+
			"State name: %s\n"+
			"Population size: %s\n"+
			"Geographic scope: %s\n"+
			"Special focus areas: %s",
		req.Name, orUnspecified(req.Population), req.Geography, orUnspecified(req.FocusAreas),
	)
}

func orUnspecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}
