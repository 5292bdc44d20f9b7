package kudos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Identity describes an authenticated user as the identity source knows
// them. Only ID is required.
type Identity struct {
	ID                string
	Email             string
	AvatarURL         string
	FullName          string
	Name              string
	PreferredUsername string
	UserName          string
}

// DisplayName picks the first usable name for id.
func (id Identity) DisplayName() string {
	for _, candidate := range []string{id.FullName, id.Name, id.PreferredUsername, id.UserName} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	if local, _, _ := strings.Cut(id.Email, "@"); local != "" {
		return local
	}
	short := id.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User " + short
}

// EnsureProfile returns the profile for id, creating it if it does not
// exist. An existing profile is never modified.
func (s *Service) EnsureProfile(ctx context.Context, id Identity) (*Profile, error) {
	if id.ID == "" {
		return nil, errors.New("identity has no id")
	}

	existing, err := s.store.GetProfile(ctx, id.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	now := s.now().UTC()
	profile := &Profile{
		ID:          id.ID,
		DisplayName: id.DisplayName(),
		AvatarURL:   optional(id.AvatarURL),
		Email:       optional(id.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, ErrConflict) {
			// Created concurrently
			return s.store.GetProfile(ctx, id.ID)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile created",
		slog.String("profile_id", profile.ID),
		slog.String("display_name", profile.DisplayName),
	)

	return profile, nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
