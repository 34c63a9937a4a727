package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
)

var _ store.Accounts = (*Store)(nil)

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	st, done := s.read()
	defer done()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range st.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return apperrors.ErrAlreadyExists.WithDetail("resource", "user")
		}
	}
	u.ID = st.next("users")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	st.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	st, done := s.read()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	st, done := s.read()
	defer done()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user")
}

func (s *Store) UpdateProfile(_ context.Context, id uint, username, phone string) (*models.User, error) {
	st, done := s.read()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	if username != "" {
		for otherID, other := range st.users {
			if otherID != id && other.Username == username {
				return nil, apperrors.ErrAlreadyExists.WithDetail("resource", "user")
			}
		}
		u.Username = username
	}
	if phone != "" {
		u.PhoneNumber = phone
	}
	u.UpdatedAt = time.Now()
	st.users[id] = u
	return &u, nil
}

func (s *Store) SetPushToken(_ context.Context, id uint, token string) error {
	st, done := s.read()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return apperrors.NotFound("user")
	}
	u.FCMToken = token
	st.users[id] = u
	return nil
}

func (s *Store) Preferences(_ context.Context, userID uint) (*models.NotificationPreference, error) {
	st, done := s.read()
	defer done()
	if p, ok := st.prefs[userID]; ok {
		return &p, nil
	}
	return models.DefaultPreferences(userID), nil
}

func (s *Store) SavePreferences(_ context.Context, p *models.NotificationPreference) error {
	st, done := s.read()
	defer done()
	now := time.Now()
	if existing, ok := st.prefs[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = st.next("preferences")
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	st.prefs[p.UserID] = *p
	return nil
}
