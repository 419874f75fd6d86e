package lawgen

import "context"

// Generation is the product of one model call: the parsed draft plus the
// usage figures the attempt record keeps for auditing.
type Generation struct {
	Draft      Draft
	Model      string
	TokensUsed int
}

// Generator produces a law draft from a user prompt. Implementations
// wrap a specific model provider; the service only sees generations.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (*Generation, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (*Generation, error) {
	return f(ctx, prompt)
}
