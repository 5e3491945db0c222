// Package testutil holds in-memory stand-ins for the Postgres repositories
// and a capturing audit recorder.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/repository"
)

type UserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewUserStore(users ...models.User) *UserStore {
	s := &UserStore{users: make(map[string]models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// Create enforces the single admin row the same way the unique index does.
func (s *UserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 {
		return repository.ErrUserExists
	}
	s.users[user.ID] = user
	return nil
}

func (s *UserStore) Exists(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users) > 0, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *UserStore) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

type SessionStore struct {
	mu       sync.Mutex
	sessions []models.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (s *SessionStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *SessionStore) FindActiveByRefreshHash(_ context.Context, hash string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.RefreshTokenHash == hash && !session.Revoked {
			return session, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (s *SessionStore) LatestActiveByUser(_ context.Context, userID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest models.Session
		found  bool
	)
	for _, session := range s.sessions {
		if session.UserID != userID || session.Revoked {
			continue
		}
		if !found || !session.CreatedAt.Before(latest.CreatedAt) {
			latest, found = session, true
		}
	}
	if !found {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return latest, nil
}

func (s *SessionStore) RevokeByRefreshHash(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].RefreshTokenHash == hash && !s.sessions[i].Revoked {
			s.revoke(i)
			return s.sessions[i].UserID, nil
		}
	}
	return "", repository.ErrSessionNotFound
}

func (s *SessionStore) RevokeByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == id && !s.sessions[i].Revoked {
			s.revoke(i)
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionStore) revoke(i int) {
	now := time.Now()
	s.sessions[i].Revoked = true
	s.sessions[i].RevokedAt = &now
}

// All returns a copy of every stored session in insertion order.
func (s *SessionStore) All() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Session(nil), s.sessions...)
}

type ShareLinkStore struct {
	mu    sync.Mutex
	links map[string]models.ShareLink
}

func NewShareLinkStore() *ShareLinkStore {
	return &ShareLinkStore{links: make(map[string]models.ShareLink)}
}

func (s *ShareLinkStore) Create(_ context.Context, link models.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ID] = link
	return nil
}

func (s *ShareLinkStore) FindActiveByTokenHash(_ context.Context, hash string) (models.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		if link.TokenHash == hash && !link.Revoked {
			return link, nil
		}
	}
	return models.ShareLink{}, repository.ErrShareLinkNotFound
}

func (s *ShareLinkStore) GetByID(_ context.Context, id string) (models.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return models.ShareLink{}, repository.ErrShareLinkNotFound
	}
	return link, nil
}

// ConsumeUse applies the same guard as the SQL conditional update.
func (s *ShareLinkStore) ConsumeUse(_ context.Context, id, device string, at time.Time) (models.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok || link.Revoked || link.Expired(at) || link.UsageExhausted() || !link.DeviceAllowed(device) {
		return models.ShareLink{}, repository.ErrShareLinkUnavailable
	}

	link.UseCount++
	used := at
	link.LastUsedAt = &used
	if link.DeviceBinding && link.DeviceFingerprint == nil && device != "" {
		bound := device
		link.DeviceFingerprint = &bound
	}
	s.links[id] = link
	return link, nil
}

func (s *ShareLinkStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return repository.ErrShareLinkNotFound
	}
	link.Revoked = true
	s.links[id] = link
	return nil
}

func (s *ShareLinkStore) List(context.Context) ([]models.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	links := make([]models.ShareLink, 0, len(s.links))
	for _, link := range s.links {
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return strings.Compare(links[i].ID, links[j].ID) > 0
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

// Mutate edits a stored link in place, for arranging races and corruption.
func (s *ShareLinkStore) Mutate(id string, fn func(*models.ShareLink)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.links[id]
	fn(&link)
	s.links[id] = link
}
