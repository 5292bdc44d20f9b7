package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tjfontaine/kudospace/internal/kudos"
)

// Store is an in-memory implementation of kudos.Store
type Store struct {
	mu       sync.RWMutex
	profiles map[string]kudos.Profile
	kudos    map[string]entry
	seq      int64
}

// entry keeps insertion order to break created_at ties.
type entry struct {
	kudos.KudoRecord
	seq int64
}

var _ kudos.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		profiles: make(map[string]kudos.Profile),
		kudos:    make(map[string]entry),
	}
}

func (s *Store) ListKudos(ctx context.Context, limit, offset int) ([]kudos.Kudo, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entry, 0, len(s.kudos))
	for _, e := range s.kudos {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	total := len(entries)
	if offset >= total {
		return []kudos.Kudo{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]kudos.Kudo, 0, end-offset)
	for _, e := range entries[offset:end] {
		result = append(result, s.join(e.KudoRecord))
	}
	return result, total, nil
}

func (s *Store) GetKudo(ctx context.Context, id string) (*kudos.Kudo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.kudos[id]
	if !exists {
		return nil, fmt.Errorf("kudo %s: %w", id, kudos.ErrNotFound)
	}
	kudo := s.join(e.KudoRecord)
	return &kudo, nil
}

func (s *Store) CreateKudo(ctx context.Context, kudo *kudos.KudoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.kudos[kudo.ID]; exists {
		return fmt.Errorf("kudo %s: %w", kudo.ID, kudos.ErrConflict)
	}
	for _, id := range []string{kudo.SenderID, kudo.RecipientID} {
		if _, exists := s.profiles[id]; !exists {
			return fmt.Errorf("profile %s: %w", id, kudos.ErrNotFound)
		}
	}

	s.seq++
	s.kudos[kudo.ID] = entry{KudoRecord: *kudo, seq: s.seq}
	return nil
}

func (s *Store) DeleteKudo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.kudos[id]; !exists {
		return fmt.Errorf("kudo %s: %w", id, kudos.ErrNotFound)
	}
	delete(s.kudos, id)
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*kudos.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.profiles[id]
	if !exists {
		return nil, fmt.Errorf("profile %s: %w", id, kudos.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, profile *kudos.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return fmt.Errorf("profile %s: %w", profile.ID, kudos.ErrConflict)
	}
	s.profiles[profile.ID] = *profile
	return nil
}

func (s *Store) ListProfiles(ctx context.Context, search, excludeID string) ([]kudos.ProfileSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(search)
	result := []kudos.ProfileSummary{}
	for _, p := range s.profiles {
		if excludeID != "" && p.ID == excludeID {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		result = append(result, p.Summary())
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := strings.ToLower(result[i].DisplayName), strings.ToLower(result[j].DisplayName)
		if a != b {
			return a < b
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) Close() error {
	return nil
}

// join must be called with s.mu held.
func (s *Store) join(r kudos.KudoRecord) kudos.Kudo {
	return kudos.Kudo{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Sender:      s.profiles[r.SenderID].Summary(),
		Recipient:   s.profiles[r.RecipientID].Summary(),
	}
}

func matches(p kudos.Profile, needle string) bool {
	if strings.Contains(strings.ToLower(p.DisplayName), needle) {
		return true
	}
	return p.Email != nil && strings.Contains(strings.ToLower(*p.Email), needle)
}
