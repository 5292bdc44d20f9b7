// Package kudos holds the kudo and profile types and the service that
// applies the board's rules on top of a Store.
package kudos

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultLimit     = 50
	MaxLimit         = 100
	MaxMessageLength = 1000
	MaxSearchLength  = 100
)

var (
	// ErrNotFound is returned by a Store when the row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by a Store when the row already exists.
	ErrConflict = errors.New("already exists")
)

// Profile is a user of the board.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	Email       *string   `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns the public part of the profile.
func (p Profile) Summary() ProfileSummary {
	return ProfileSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Email:       p.Email,
	}
}

// ProfileSummary is the profile shape embedded in kudos and user lists.
type ProfileSummary struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Email       *string `json:"email"`
}

// KudoRecord is a kudo as stored.
type KudoRecord struct {
	ID          string
	SenderID    string
	RecipientID string
	Message     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Kudo is a kudo joined with its sender and recipient.
type Kudo struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"sender_id"`
	RecipientID string         `json:"recipient_id"`
	Message     string         `json:"message"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Sender      ProfileSummary `json:"sender"`
	Recipient   ProfileSummary `json:"recipient"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type KudoList struct {
	Data       []Kudo     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type UserList struct {
	Data []ProfileSummary `json:"data"`
}

type DeleteResult struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Store persists profiles and kudos. Lookups of missing rows return
// ErrNotFound.
type Store interface {
	// ListKudos returns a page of kudos, newest first, and the total count.
	ListKudos(ctx context.Context, limit, offset int) ([]Kudo, int, error)
	GetKudo(ctx context.Context, id string) (*Kudo, error)
	CreateKudo(ctx context.Context, kudo *KudoRecord) error
	DeleteKudo(ctx context.Context, id string) error

	GetProfile(ctx context.Context, id string) (*Profile, error)
	// CreateProfile returns ErrConflict if the id is taken.
	CreateProfile(ctx context.Context, profile *Profile) error
	// ListProfiles returns profiles whose display name or email contains
	// search, ordered by display name. An empty excludeID excludes nothing.
	ListProfiles(ctx context.Context, search, excludeID string) ([]ProfileSummary, error)

	Close() error
}
