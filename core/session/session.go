// Package session holds the authentication state of a client.
// A *Session is loaded once per request and handed down explicitly; only the Manager mutates it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/pueriangeli/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("session not found")
	ErrNotAuthenticated = errors.New("session not authenticated")
)

type (
	// Principal is the session's snapshot of the logged in user.
	Principal struct {
		UserID    string    `json:"user_id"`
		FirstName string    `json:"first_name"`
		LastName  string    `json:"last_name"`
		Email     string    `json:"email"`
		Role      user.Role `json:"role"`
	}

	Session struct {
		ID            string     `json:"id"`
		User          *Principal `json:"user,omitempty"`
		Authenticated bool       `json:"authenticated"`
		CreatedAt     time.Time  `json:"created_at"`
		ExpiresAt     time.Time  `json:"expires_at"`
	}

	// ProfilePatch carries the profile fields to merge into the principal; empty fields are kept.
	ProfilePatch struct {
		FirstName string
		LastName  string
		Email     string
	}

	// Store persists sessions. Implementations must be safe for concurrent use.
	Store interface {
		Get(ctx context.Context, id string) (*Session, error)
		Save(ctx context.Context, sess *Session, ttl time.Duration) error
		Delete(ctx context.Context, id string) error
	}
)

// Anonymous returns a session with no user.
func Anonymous() *Session {
	return &Session{}
}

func NewPrincipal(usr user.User) *Principal {
	return &Principal{
		UserID:    usr.ID,
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		Email:     usr.Email,
		Role:      usr.Role,
	}
}

func (p *Principal) Name() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsAuthenticated is nil-safe.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Authenticated && s.User != nil
}

// Role returns the principal's role, RoleUnknown when not authenticated.
func (s *Session) Role() user.Role {
	if !s.IsAuthenticated() {
		return user.RoleUnknown
	}
	return s.User.Role
}

func (s *Session) UserID() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.User.UserID
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (pp ProfilePatch) apply(p *Principal) {
	if pp.FirstName != "" {
		p.FirstName = pp.FirstName
	}
	if pp.LastName != "" {
		p.LastName = pp.LastName
	}
	if pp.Email != "" {
		p.Email = pp.Email
	}
}
