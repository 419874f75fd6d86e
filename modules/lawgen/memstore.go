package lawgen

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memLawStore is an in-memory LawStore for tests and local development.
type memLawStore struct {
	mu   sync.Mutex
	laws []Law // append order, oldest first
}

// NewMemLawStore returns an empty in-memory law store.
func NewMemLawStore() LawStore {
	return &memLawStore{}
}

func (s *memLawStore) Insert(ctx context.Context, law *Law) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if law.ID == uuid.Nil {
		law.ID = uuid.New()
	}
	if law.CreatedAt.IsZero() {
		law.CreatedAt = time.Now().UTC()
	}
	s.laws = append(s.laws, copyLaw(*law))
	return nil
}

func (s *memLawStore) ByID(ctx context.Context, userID, lawID uuid.UUID) (*Law, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.laws {
		if s.laws[i].ID == lawID && s.laws[i].UserID == userID {
			law := copyLaw(s.laws[i])
			return &law, nil
		}
	}
	return nil, ErrLawNotFound
}

func (s *memLawStore) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Law, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Law, 0, limit)
	skipped := 0
	for i := len(s.laws) - 1; i >= 0 && len(out) < limit; i-- {
		if s.laws[i].UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, copyLaw(s.laws[i]))
	}
	return out, nil
}

func (s *memLawStore) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]Law, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	out := make([]Law, 0, limit)
	for i := len(s.laws) - 1; i >= 0 && len(out) < limit; i-- {
		if s.laws[i].UserID != userID {
			continue
		}
		if lawMatches(&s.laws[i], q) {
			out = append(out, copyLaw(s.laws[i]))
		}
	}
	return out, nil
}

func (s *memLawStore) SetFavorite(ctx context.Context, userID, lawID uuid.UUID, favorite bool) (*Law, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.laws {
		if s.laws[i].ID == lawID && s.laws[i].UserID == userID {
			s.laws[i].Favorite = favorite
			law := copyLaw(s.laws[i])
			return &law, nil
		}
	}
	return nil, ErrLawNotFound
}

func lawMatches(law *Law, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(law.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(law.Content), lowerQuery) {
		return true
	}
	for _, tag := range law.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return true
		}
	}
	return false
}

func copyLaw(law Law) Law {
	law.Tags = slices.Clone(law.Tags)
	return law
}

// memConstitutionStore is an in-memory ConstitutionStore.
type memConstitutionStore struct {
	mu            sync.Mutex
	constitutions map[uuid.UUID]Constitution // keyed by user
}

// NewMemConstitutionStore returns an empty in-memory constitution store.
func NewMemConstitutionStore() ConstitutionStore {
	return &memConstitutionStore{constitutions: make(map[uuid.UUID]Constitution)}
}

func (s *memConstitutionStore) Upsert(ctx context.Context, constitution *Constitution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.constitutions[constitution.UserID]; ok {
		constitution.ID = existing.ID
		constitution.CreatedAt = existing.CreatedAt
	} else {
		if constitution.ID == uuid.Nil {
			constitution.ID = uuid.New()
		}
		constitution.CreatedAt = now
	}
	constitution.UpdatedAt = now
	s.constitutions[constitution.UserID] = *constitution
	return nil
}

func (s *memConstitutionStore) ByUserID(ctx context.Context, userID uuid.UUID) (*Constitution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	constitution, ok := s.constitutions[userID]
	if !ok {
		return nil, ErrConstitutionNotFound
	}
	return &constitution, nil
}

// memAttemptStore is an in-memory AttemptStore.
type memAttemptStore struct {
	mu       sync.Mutex
	attempts []GenerationAttempt
}

// NewMemAttemptStore returns an empty in-memory attempt store.
func NewMemAttemptStore() AttemptStore {
	return &memAttemptStore{}
}

func (s *memAttemptStore) Insert(ctx context.Context, attempt *GenerationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *memAttemptStore) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]GenerationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]GenerationAttempt, 0, limit)
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if s.attempts[i].UserID == userID {
			out = append(out, s.attempts[i])
		}
	}
	return out, nil
}
