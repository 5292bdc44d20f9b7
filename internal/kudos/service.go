package kudos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/kudospace/internal/domain"
	"github.com/tjfontaine/kudospace/internal/validation"
)

var schema = validation.New()

// ListParams selects a page of the feed.
type ListParams struct {
	Limit  int `json:"limit" validate:"gte=1,max=100"`
	Offset int `json:"offset" validate:"gte=0"`
}

// CreateCommand is the client's part of a new kudo. The sender comes from
// the authenticated user.
type CreateCommand struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Message     string `json:"message" validate:"min=1,max=1000"`
}

// UsersQuery filters the user list.
type UsersQuery struct {
	Search    string `json:"search" validate:"max=100"`
	ExcludeMe bool   `json:"exclude_me"`
}

type deleteParams struct {
	ID string `json:"id" validate:"required,uuid"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service applies validation, ownership and pagination rules to a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a page of kudos, newest first.
func (s *Service) List(ctx context.Context, params ListParams) (*KudoList, error) {
	if err := schema.Struct(params); err != nil {
		return nil, errInvalidParameters("Invalid query parameters.", validation.Fields(err))
	}

	kudos, total, err := s.store.ListKudos(ctx, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list kudos: %w", err)
	}
	if kudos == nil {
		kudos = []Kudo{}
	}

	return &KudoList{
		Data: kudos,
		Pagination: Pagination{
			Limit:  params.Limit,
			Offset: params.Offset,
			Total:  total,
		},
	}, nil
}

// Create stores a kudo from senderID and returns it joined with both profiles.
func (s *Service) Create(ctx context.Context, senderID string, cmd CreateCommand) (*Kudo, error) {
	cmd.Message = strings.TrimSpace(cmd.Message)
	cmd.RecipientID = strings.TrimSpace(cmd.RecipientID)

	if err := schema.Struct(cmd); err != nil {
		return nil, createValidationError(err)
	}

	recipientID := uuid.MustParse(cmd.RecipientID).String()
	if strings.EqualFold(recipientID, senderID) {
		return nil, newError(domain.ErrorCodeSelfKudoNotAllowed, http.StatusBadRequest, "You cannot send kudos to yourself.")
	}

	if _, err := s.store.GetProfile(ctx, recipientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(domain.ErrorCodeInvalidRecipient, http.StatusBadRequest, "Recipient does not exist.")
		}
		return nil, fmt.Errorf("failed to look up recipient: %w", err)
	}

	now := s.now().UTC()
	record := &KudoRecord{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Message:     cmd.Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateKudo(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to insert kudo: %w", err)
	}

	kudo, err := s.store.GetKudo(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve created kudo: %w", err)
	}

	s.logger.InfoContext(ctx, "kudo created",
		slog.String("kudo_id", kudo.ID),
		slog.String("sender_id", senderID),
		slog.String("recipient_id", recipientID),
	)

	return kudo, nil
}

// createValidationError reports message problems before recipient ones.
func createValidationError(err error) *ServiceError {
	fields := validation.Fields(err)

	switch tag := validation.FirstTag(err, "message"); tag {
	case "":
	case "min":
		return newError(domain.ErrorCodeMessageTooShort, http.StatusBadRequest, fields["message"]).with(fields)
	case "max":
		return newError(domain.ErrorCodeMessageTooLong, http.StatusBadRequest, fields["message"]).with(fields)
	default:
		return newError(domain.ErrorCodeInvalidMessage, http.StatusBadRequest, fields["message"]).with(fields)
	}

	if msg, ok := fields["recipient_id"]; ok {
		return newError(domain.ErrorCodeInvalidRecipient, http.StatusBadRequest, msg).with(fields)
	}

	return errInvalidParameters("Invalid request body.", fields)
}

// Delete removes a kudo. Only its sender may delete it.
func (s *Service) Delete(ctx context.Context, id, requesterID string) (*DeleteResult, error) {
	params := deleteParams{ID: strings.TrimSpace(id)}
	if err := schema.Struct(params); err != nil {
		return nil, newError(domain.ErrorCodeInvalidUUID, http.StatusBadRequest, "Invalid kudo ID format.").
			with(validation.Fields(err))
	}
	id = uuid.MustParse(params.ID).String()

	kudo, err := s.store.GetKudo(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(domain.ErrorCodeKudoNotFound, http.StatusNotFound, "Kudo does not exist.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up kudo: %w", err)
	}

	if kudo.SenderID != requesterID {
		return nil, newError(domain.ErrorCodeForbidden, http.StatusForbidden, "You are not allowed to delete this kudo.").
			with(map[string]string{
				"sender_id":    kudo.SenderID,
				"requester_id": requesterID,
			})
	}

	if err := s.store.DeleteKudo(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(domain.ErrorCodeKudoNotFound, http.StatusNotFound, "Kudo does not exist.")
		}
		return nil, fmt.Errorf("failed to delete kudo: %w", err)
	}

	s.logger.InfoContext(ctx, "kudo deleted",
		slog.String("kudo_id", id),
		slog.String("requester_id", requesterID),
	)

	return &DeleteResult{Message: "Kudo deleted successfully.", ID: id}, nil
}

// ListUsers returns the profiles matching q, excluding the requester by
// default.
func (s *Service) ListUsers(ctx context.Context, requesterID string, q UsersQuery) (*UserList, error) {
	q.Search = strings.TrimSpace(q.Search)
	if err := schema.Struct(q); err != nil {
		return nil, errInvalidParameters("Invalid query parameters.", validation.Fields(err))
	}

	exclude := ""
	if q.ExcludeMe {
		exclude = requesterID
	}

	users, err := s.store.ListProfiles(ctx, q.Search, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []ProfileSummary{}
	}
	return &UserList{Data: users}, nil
}

// Me returns the requester's own profile.
func (s *Service) Me(ctx context.Context, id string) (*Profile, error) {
	profile, err := s.store.GetProfile(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(domain.ErrorCodeProfileNotFound, http.StatusNotFound, "Profile not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
