package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memUserStore is an in-memory UserStore for tests and local development.
type memUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
}

// NewMemUserStore returns an empty in-memory user store.
func NewMemUserStore() UserStore {
	return &memUserStore{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *memUserStore) GetOrCreate(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[email]; ok {
		return copyUser(s.byID[id]), nil
	}

	user := &User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID
	return copyUser(user), nil
}

func (s *memUserStore) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

func (s *memUserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *memUserStore) Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	draft := copyUser(user)
	if err := fn(draft); err != nil {
		return nil, err
	}
	s.byID[id] = draft

	return copyUser(draft), nil
}

func copyUser(u *User) *User {
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
