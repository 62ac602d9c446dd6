// Package auth handles account registration, login and request identity.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/store"
)

type Service struct {
	users  *store.UserStore
	tokens *TokenManager
	logger *slog.Logger
}

func NewService(st *store.Store, tokens *TokenManager, logger *slog.Logger) *Service {
	return &Service{users: st.Users, tokens: tokens, logger: logger}
}

// Session is returned by Register and Login.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, email, username, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("a valid email is required")
	}
	if len(username) < 3 || len(username) > 30 {
		return nil, apperr.Validation("username must be between 3 and 30 characters")
	}

	hash, err := HashPassword(password)
	if errors.Is(err, ErrWeakPassword) {
		return nil, apperr.Validation(err.Error())
	}
	if err != nil {
		return nil, apperr.Internal("failed to register", err)
	}

	u, err := s.users.Create(ctx, email, username, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("email or username already registered")
	}
	if err != nil {
		return nil, apperr.Internal("failed to register", err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, apperr.Internal("failed to log in", err)
	}
	if u == nil || !CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	return s.session(u)
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	return &Session{Token: token, User: u}, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated("account no longer exists")
	}
	return u, nil
}

// SetAvatar changes the caller's avatar URL. An empty URL clears it.
func (s *Service) SetAvatar(ctx context.Context, userID, avatarURL string) (*model.User, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if len(avatarURL) > 2048 {
		return nil, apperr.Validation("avatarUrl is too long")
	}
	if err := s.users.SetAvatar(ctx, userID, avatarURL); err != nil {
		return nil, apperr.Internal("failed to update avatar", err)
	}
	return s.Me(ctx, userID)
}
