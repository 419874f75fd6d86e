package lawgen_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexforge/lexforge/modules/billing"
	"github.com/lexforge/lexforge/modules/lawgen"
)

// fakeWallet tracks debits and can be scripted to run dry.
type fakeWallet struct {
	balance int64
	debits  []int64
}

func (w *fakeWallet) UseCredits(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error) {
	if amount > w.balance {
		return 0, &billing.InsufficientCreditsError{Required: amount, Available: w.balance}
	}
	w.balance -= amount
	w.debits = append(w.debits, amount)
	return w.balance, nil
}

func staticGenerator(gen *lawgen.Generation, err error) lawgen.GeneratorFunc {
	return func(ctx context.Context, prompt string) (*lawgen.Generation, error) {
		return gen, err
	}
}

func staticConstitutionGenerator(gen *lawgen.ConstitutionGeneration, err error) lawgen.ConstitutionGeneratorFunc {
	return func(ctx context.Context, req lawgen.ConstitutionRequest) (*lawgen.ConstitutionGeneration, error) {
		return gen, err
	}
}

type lawgenFixture struct {
	laws          lawgen.LawStore
	attempts      lawgen.AttemptStore
	constitutions lawgen.ConstitutionStore
	wallet        *fakeWallet
	svc           *lawgen.Service
}

func newLawgenFixture(t *testing.T, balance int64, gen lawgen.Generator) *lawgenFixture {
	t.Helper()
	return newConstitutionFixture(t, balance, gen, staticConstitutionGenerator(goodConstitution(), nil))
}

func newConstitutionFixture(t *testing.T, balance int64, gen lawgen.Generator, constGen lawgen.ConstitutionGenerator) *lawgenFixture {
	t.Helper()
	laws := lawgen.NewMemLawStore()
	attempts := lawgen.NewMemAttemptStore()
	constitutions := lawgen.NewMemConstitutionStore()
	wallet := &fakeWallet{balance: balance}
	return &lawgenFixture{
		laws:          laws,
		attempts:      attempts,
		constitutions: constitutions,
		wallet:        wallet,
		svc:           lawgen.NewService(laws, attempts, constitutions, gen, constGen, wallet),
	}
}

func goodConstitution() *lawgen.ConstitutionGeneration {
	return &lawgen.ConstitutionGeneration{
		Draft: lawgen.ConstitutionDraft{
			Preamble:   "We the pigeons, in order to form a more perfect roost.",
			Rights:     "Article 1. Every pigeon may perch where it pleases.",
			Structure:  "Article 2. A council of elders governs the flock.",
			Amendments: "Article 3. Amendments require a two-thirds coo.",
		},
		Model:      "gpt-4o-mini",
		TokensUsed: 1984,
	}
}

func goodDraft() *lawgen.Generation {
	return &lawgen.Generation{
		Draft: lawgen.Draft{
			Title:   "The Pigeon Enfranchisement Act",
			Summary: "Grants municipal voting rights to urban pigeons.",
			Content: "Article 1. Pigeons may vote in municipal elections.",
			Tags:    []string{"elections", "birds"},
		},
		Model:      "gpt-4o-mini",
		TokensUsed: 321,
	}
}

func TestService_GenerateLaw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("debits then generates and archives", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 50, staticGenerator(goodDraft(), nil))
		userID := uuid.New()

		law, err := f.svc.GenerateLaw(ctx, userID, "pigeons in politics")
		require.NoError(t, err)
		assert.Equal(t, "The Pigeon Enfranchisement Act", law.Title)
		assert.Equal(t, int64(40), f.wallet.balance)

		stored, err := f.laws.ByID(ctx, userID, law.ID)
		require.NoError(t, err)
		assert.Equal(t, law.Title, stored.Title)

		attempts, err := f.attempts.Recent(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, lawgen.AttemptSucceeded, attempts[0].Status)
		require.NotNil(t, attempts[0].LawID)
		assert.Equal(t, law.ID, *attempts[0].LawID)
		assert.Equal(t, lawgen.GenerationCost, attempts[0].CreditsCharged)
		assert.Equal(t, "gpt-4o-mini", attempts[0].Model)
		assert.Equal(t, 321, attempts[0].TokensUsed)
		assert.Equal(t, "pigeons in politics", stored.Prompt)
		assert.Equal(t, "gpt-4o-mini", stored.Model)
	})

	t.Run("insufficient credits never reach the model", func(t *testing.T) {
		t.Parallel()
		var called bool
		gen := lawgen.GeneratorFunc(func(ctx context.Context, prompt string) (*lawgen.Generation, error) {
			called = true
			return goodDraft(), nil
		})
		f := newLawgenFixture(t, lawgen.GenerationCost-1, gen)

		_, err := f.svc.GenerateLaw(ctx, uuid.New(), "anything")
		ice, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)
		assert.Equal(t, lawgen.GenerationCost, ice.Required)
		assert.False(t, called)
	})

	t.Run("model failure stays charged and leaves an audit record", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 50, staticGenerator(nil, errors.New("upstream timeout")))
		userID := uuid.New()

		_, err := f.svc.GenerateLaw(ctx, userID, "doomed prompt")
		assert.ErrorIs(t, err, lawgen.ErrGenerationFailed)

		// No refund.
		assert.Equal(t, int64(40), f.wallet.balance)

		attempts, err := f.attempts.Recent(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, lawgen.AttemptFailed, attempts[0].Status)
		assert.Contains(t, attempts[0].FailureReason, "upstream timeout")
		assert.Equal(t, lawgen.GenerationCost, attempts[0].CreditsCharged)

		// Nothing half-written in the archive.
		laws, err := f.laws.List(ctx, userID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, laws)
	})

	t.Run("empty prompt costs nothing", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 50, staticGenerator(goodDraft(), nil))

		_, err := f.svc.GenerateLaw(ctx, uuid.New(), "   ")
		assert.ErrorIs(t, err, lawgen.ErrEmptyPrompt)
		assert.Equal(t, int64(50), f.wallet.balance)
	})
}

func TestService_SearchLaws(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	seed := func(t *testing.T, f *lawgenFixture, userID uuid.UUID) {
		t.Helper()
		for _, law := range []lawgen.Law{
			{UserID: userID, Title: "The Pigeon Act", Content: "Birds vote.", Tags: []string{"birds"}},
			{UserID: userID, Title: "The Nap Act", Content: "Citizens nap.", Tags: []string{"rest"}},
		} {
			require.NoError(t, f.laws.Insert(ctx, &law))
		}
	}

	t.Run("debits one credit per search", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 10, staticGenerator(goodDraft(), nil))
		userID := uuid.New()
		seed(t, f, userID)

		laws, err := f.svc.SearchLaws(ctx, userID, "pigeon", 10)
		require.NoError(t, err)
		require.Len(t, laws, 1)
		assert.Equal(t, "The Pigeon Act", laws[0].Title)
		assert.Equal(t, int64(9), f.wallet.balance)
	})

	t.Run("matches tags case-insensitively", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 10, staticGenerator(goodDraft(), nil))
		userID := uuid.New()
		seed(t, f, userID)

		laws, err := f.svc.SearchLaws(ctx, userID, "BIRDS", 10)
		require.NoError(t, err)
		assert.Len(t, laws, 1)
	})

	t.Run("empty query costs nothing", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 10, staticGenerator(goodDraft(), nil))

		_, err := f.svc.SearchLaws(ctx, uuid.New(), "", 10)
		assert.ErrorIs(t, err, lawgen.ErrEmptyQuery)
		assert.Equal(t, int64(10), f.wallet.balance)
	})

	t.Run("exhausted balance blocks the search", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 0, staticGenerator(goodDraft(), nil))

		_, err := f.svc.SearchLaws(ctx, uuid.New(), "pigeon", 10)
		_, ok := billing.IsInsufficientCredits(err)
		assert.True(t, ok)
	})
}

func TestService_Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("listing is free and newest first", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 0, staticGenerator(goodDraft(), nil))
		userID := uuid.New()

		for _, title := range []string{"First", "Second", "Third"} {
			require.NoError(t, f.laws.Insert(ctx, &lawgen.Law{UserID: userID, Title: title, Content: "x"}))
		}

		laws, err := f.svc.ListLaws(ctx, userID, 2, 0)
		require.NoError(t, err)
		require.Len(t, laws, 2)
		assert.Equal(t, "Third", laws[0].Title)
		assert.Equal(t, "Second", laws[1].Title)

		page2, err := f.svc.ListLaws(ctx, userID, 2, 2)
		require.NoError(t, err)
		require.Len(t, page2, 1)
		assert.Equal(t, "First", page2[0].Title)
	})

	t.Run("laws are invisible to other users", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 0, staticGenerator(goodDraft(), nil))
		owner, stranger := uuid.New(), uuid.New()

		law := &lawgen.Law{UserID: owner, Title: "Private", Content: "x"}
		require.NoError(t, f.laws.Insert(ctx, law))

		_, err := f.svc.GetLaw(ctx, stranger, law.ID)
		assert.ErrorIs(t, err, lawgen.ErrLawNotFound)

		_, err = f.svc.ToggleFavorite(ctx, stranger, law.ID)
		assert.ErrorIs(t, err, lawgen.ErrLawNotFound)
	})

	t.Run("toggle favorite flips both ways", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 0, staticGenerator(goodDraft(), nil))
		userID := uuid.New()

		law := &lawgen.Law{UserID: userID, Title: "Flip", Content: "x"}
		require.NoError(t, f.laws.Insert(ctx, law))

		updated, err := f.svc.ToggleFavorite(ctx, userID, law.ID)
		require.NoError(t, err)
		assert.True(t, updated.Favorite)

		updated, err = f.svc.ToggleFavorite(ctx, userID, law.ID)
		require.NoError(t, err)
		assert.False(t, updated.Favorite)
	})
}

func TestService_GenerateConstitution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("debits fifty credits and stores the framework", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 100, staticGenerator(goodDraft(), nil))
		userID := uuid.New()

		constitution, err := f.svc.GenerateConstitution(ctx, userID, lawgen.ConstitutionRequest{
			Name:       "Republic of Roosts",
			Population: "around 5000",
			FocusAreas: "perch rights",
		})
		require.NoError(t, err)
		assert.Equal(t, "Republic of Roosts", constitution.Name)
		assert.Contains(t, constitution.Preamble, "more perfect roost")
		assert.Equal(t, int64(50), f.wallet.balance)

		stored, err := f.constitutions.ByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, constitution.ID, stored.ID)

		attempts, err := f.attempts.Recent(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, lawgen.AttemptSucceeded, attempts[0].Status)
		assert.Equal(t, lawgen.ConstitutionCost, attempts[0].CreditsCharged)
	})

	t.Run("regeneration replaces in place rather than duplicating", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 200, staticGenerator(goodDraft(), nil))
		userID := uuid.New()

		first, err := f.svc.GenerateConstitution(ctx, userID, lawgen.ConstitutionRequest{Name: "First Republic"})
		require.NoError(t, err)
		second, err := f.svc.GenerateConstitution(ctx, userID, lawgen.ConstitutionRequest{Name: "Second Republic"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(100), f.wallet.balance)

		stored, err := f.constitutions.ByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Second Republic", stored.Name)
	})

	t.Run("empty name gets the default", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 100, staticGenerator(goodDraft(), nil))

		constitution, err := f.svc.GenerateConstitution(ctx, uuid.New(), lawgen.ConstitutionRequest{})
		require.NoError(t, err)
		assert.Equal(t, "The Network State", constitution.Name)
	})

	t.Run("insufficient credits never reach the model", func(t *testing.T) {
		t.Parallel()
		var called bool
		constGen := lawgen.ConstitutionGeneratorFunc(func(ctx context.Context, req lawgen.ConstitutionRequest) (*lawgen.ConstitutionGeneration, error) {
			called = true
			return goodConstitution(), nil
		})
		f := newConstitutionFixture(t, lawgen.ConstitutionCost-1, staticGenerator(goodDraft(), nil), constGen)

		_, err := f.svc.GenerateConstitution(ctx, uuid.New(), lawgen.ConstitutionRequest{})
		ice, ok := billing.IsInsufficientCredits(err)
		require.True(t, ok)
		assert.Equal(t, lawgen.ConstitutionCost, ice.Required)
		assert.False(t, called)
	})

	t.Run("model failure stays charged and leaves an audit record", func(t *testing.T) {
		t.Parallel()
		f := newConstitutionFixture(t, 100, staticGenerator(goodDraft(), nil),
			staticConstitutionGenerator(nil, errors.New("upstream timeout")))
		userID := uuid.New()

		_, err := f.svc.GenerateConstitution(ctx, userID, lawgen.ConstitutionRequest{Name: "Doomed Republic"})
		assert.ErrorIs(t, err, lawgen.ErrGenerationFailed)
		assert.Equal(t, int64(50), f.wallet.balance)

		attempts, err := f.attempts.Recent(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, lawgen.AttemptFailed, attempts[0].Status)
		assert.Equal(t, lawgen.ConstitutionCost, attempts[0].CreditsCharged)

		_, err = f.constitutions.ByUserID(ctx, userID)
		assert.ErrorIs(t, err, lawgen.ErrConstitutionNotFound)
	})

	t.Run("reading without one answers not found", func(t *testing.T) {
		t.Parallel()
		f := newLawgenFixture(t, 100, staticGenerator(goodDraft(), nil))

		_, err := f.svc.GetConstitution(ctx, uuid.New())
		assert.ErrorIs(t, err, lawgen.ErrConstitutionNotFound)
	})
}
