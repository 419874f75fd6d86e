package lawgen

import "errors"

var (
	// ErrLawNotFound indicates the law does not exist or belongs to
	// someone else. Ownership misses are deliberately indistinguishable
	// from absence.
	ErrLawNotFound = errors.New("law not found")

	// ErrEmptyPrompt indicates a generation request without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrEmptyQuery indicates a search request without a query.
	ErrEmptyQuery = errors.New("search query is required")

	// ErrGenerationFailed indicates the language model call failed or
	// produced an unusable draft. Credits for the attempt are already
	// spent when this surfaces.
	ErrGenerationFailed = errors.New("law generation failed")

	// ErrInvalidDraft indicates the model returned output that does not
	// parse into a law draft.
	ErrInvalidDraft = errors.New("model returned an invalid draft")

	// ErrConstitutionNotFound indicates the user has not generated a
	// constitution yet.
	ErrConstitutionNotFound = errors.New("constitution not found")
)
