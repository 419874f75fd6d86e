package lawgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexforge/lexforge/pkg/logger"
)

// CreditWallet debits a user's credit balance. Satisfied by the billing
// service; the indirection keeps this module testable without it.
type CreditWallet interface {
	UseCredits(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error)
}

// Service coordinates metered law generation and the law archive.
//
// Billing discipline: credits are debited BEFORE the model call, and a
// failed generation is not refunded. The failure lands in the attempt
// record instead, so support can reconcile disputed charges against an
// audit trail rather than trusting the client's account of events.
type Service struct {
	laws          LawStore
	attempts      AttemptStore
	constitutions ConstitutionStore
	generator     Generator
	constGen      ConstitutionGenerator
	wallet        CreditWallet
	log           *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithLogger sets the service logger; defaults to a discard logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a lawgen Service. Panics on nil required
// dependencies to fail fast during initialization.
func NewService(laws LawStore, attempts AttemptStore, constitutions ConstitutionStore, generator Generator, constGen ConstitutionGenerator, wallet CreditWallet, opts ...ServiceOption) *Service {
	if laws == nil {
		panic("lawgen: LawStore is required")
	}
	if attempts == nil {
		panic("lawgen: AttemptStore is required")
	}
	if constitutions == nil {
		panic("lawgen: ConstitutionStore is required")
	}
	if generator == nil {
		panic("lawgen: Generator is required")
	}
	if constGen == nil {
		panic("lawgen: ConstitutionGenerator is required")
	}
	if wallet == nil {
		panic("lawgen: CreditWallet is required")
	}

	s := &Service{
		laws:          laws,
		attempts:      attempts,
		constitutions: constitutions,
		generator:     generator,
		constGen:      constGen,
		wallet:        wallet,
		log:           logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateLaw debits the generation cost and asks the model for a new
// law. Insufficient credits fail before any model call; a model failure
// after the debit is recorded as a failed, still-charged attempt.
func (s *Service) GenerateLaw(ctx context.Context, userID uuid.UUID, prompt string) (*Law, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	if _, err := s.wallet.UseCredits(ctx, userID, GenerationCost, "Law generation"); err != nil {
		return nil, err
	}

	start := time.Now()
	gen, err := s.generator.Generate(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.recordAttempt(ctx, &GenerationAttempt{
			UserID:         userID,
			Prompt:         prompt,
			Status:         AttemptFailed,
			FailureReason:  err.Error(),
			CreditsCharged: GenerationCost,
			DurationMS:     elapsed,
		})
		s.log.Error("law generation failed after debit",
			logger.UserID(userID),
			logger.Error(err),
			logger.Component("lawgen"),
		)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	law := &Law{
		UserID:  userID,
		Title:   gen.Draft.Title,
		Summary: gen.Draft.Summary,
		Content: gen.Draft.Content,
		Tags:    gen.Draft.Tags,
		Prompt:  prompt,
		Model:   gen.Model,
	}
	if err := s.laws.Insert(ctx, law); err != nil {
		s.recordAttempt(ctx, &GenerationAttempt{
			UserID:         userID,
			Prompt:         prompt,
			Status:         AttemptFailed,
			FailureReason:  err.Error(),
			CreditsCharged: GenerationCost,
			Model:          gen.Model,
			TokensUsed:     gen.TokensUsed,
			DurationMS:     elapsed,
		})
		return nil, err
	}

	s.recordAttempt(ctx, &GenerationAttempt{
		UserID:         userID,
		Prompt:         prompt,
		Status:         AttemptSucceeded,
		LawID:          &law.ID,
		CreditsCharged: GenerationCost,
		Model:          gen.Model,
		TokensUsed:     gen.TokensUsed,
		DurationMS:     elapsed,
	})

	s.log.Info("law generated",
		logger.UserID(userID),
		slog.String("law_id", law.ID.String()),
		logger.Credits(GenerationCost),
		logger.Component("lawgen"),
	)
	return law, nil
}

// GenerateConstitution debits the constitution cost and drafts (or
// redrafts) the user's constitutional framework. The same debit-first,
// no-refund discipline as GenerateLaw applies; each user keeps exactly
// one constitution and regeneration replaces it.
func (s *Service) GenerateConstitution(ctx context.Context, userID uuid.UUID, req ConstitutionRequest) (*Constitution, error) {
	req.normalize()

	if _, err := s.wallet.UseCredits(ctx, userID, ConstitutionCost, "Constitution generation: "+req.Name); err != nil {
		return nil, err
	}

	start := time.Now()
	gen, err := s.constGen.GenerateConstitution(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.recordAttempt(ctx, &GenerationAttempt{
			UserID:         userID,
			Prompt:         "Constitution: " + req.Name,
			Status:         AttemptFailed,
			FailureReason:  err.Error(),
			CreditsCharged: ConstitutionCost,
			DurationMS:     elapsed,
		})
		s.log.Error("constitution generation failed after debit",
			logger.UserID(userID),
			logger.Error(err),
			logger.Component("lawgen"),
		)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	constitution := &Constitution{
		UserID:     userID,
		Name:       req.Name,
		Preamble:   gen.Draft.Preamble,
		Rights:     gen.Draft.Rights,
		Structure:  gen.Draft.Structure,
		Amendments: gen.Draft.Amendments,
		Model:      gen.Model,
	}
	if err := s.constitutions.Upsert(ctx, constitution); err != nil {
		s.recordAttempt(ctx, &GenerationAttempt{
			UserID:         userID,
			Prompt:         "Constitution: " + req.Name,
			Status:         AttemptFailed,
			FailureReason:  err.Error(),
			CreditsCharged: ConstitutionCost,
			Model:          gen.Model,
			TokensUsed:     gen.TokensUsed,
			DurationMS:     elapsed,
		})
		return nil, err
	}

	s.recordAttempt(ctx, &GenerationAttempt{
		UserID:         userID,
		Prompt:         "Constitution: " + req.Name,
		Status:         AttemptSucceeded,
		CreditsCharged: ConstitutionCost,
		Model:          gen.Model,
		TokensUsed:     gen.TokensUsed,
		DurationMS:     elapsed,
	})

	s.log.Info("constitution generated",
		logger.UserID(userID),
		slog.String("constitution", constitution.Name),
		logger.Credits(ConstitutionCost),
		logger.Component("lawgen"),
	)
	return constitution, nil
}

// GetConstitution returns the user's constitution. Reading is free.
func (s *Service) GetConstitution(ctx context.Context, userID uuid.UUID) (*Constitution, error) {
	return s.constitutions.ByUserID(ctx, userID)
}

// SearchLaws debits the search cost and runs the query over the user's
// archive.
func (s *Service) SearchLaws(ctx context.Context, userID uuid.UUID, query string, limit int) ([]Law, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if _, err := s.wallet.UseCredits(ctx, userID, SearchCost, "Law search"); err != nil {
		return nil, err
	}

	return s.laws.Search(ctx, userID, query, limit)
}

// ListLaws returns the user's laws newest first. Listing is free.
func (s *Service) ListLaws(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Law, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.laws.List(ctx, userID, limit, offset)
}

// GetLaw returns one of the user's laws.
func (s *Service) GetLaw(ctx context.Context, userID, lawID uuid.UUID) (*Law, error) {
	return s.laws.ByID(ctx, userID, lawID)
}

// ToggleFavorite flips the favorite flag and returns the updated law.
func (s *Service) ToggleFavorite(ctx context.Context, userID, lawID uuid.UUID) (*Law, error) {
	law, err := s.laws.ByID(ctx, userID, lawID)
	if err != nil {
		return nil, err
	}
	return s.laws.SetFavorite(ctx, userID, lawID, !law.Favorite)
}

// RecentAttempts returns the user's generation history newest first.
func (s *Service) RecentAttempts(ctx context.Context, userID uuid.UUID, limit int) ([]GenerationAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.attempts.Recent(ctx, userID, limit)
}

// recordAttempt persists the audit record; a storage failure here must
// not mask the primary outcome, so it is only logged.
func (s *Service) recordAttempt(ctx context.Context, attempt *GenerationAttempt) {
	if err := s.attempts.Insert(ctx, attempt); err != nil {
		s.log.Error("failed to record generation attempt",
			logger.UserID(attempt.UserID),
			logger.Error(err),
			logger.Component("lawgen"),
		)
	}
}
