// Package inbound exposes the admin-facing query surface over persisted
// messages: paginated list with search, get, archive toggle, and delete
// with attachment cleanup.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cmclass/inbound-mail/internal/attachment"
	"github.com/cmclass/inbound-mail/internal/repository"
	"github.com/cmclass/inbound-mail/internal/sanitizer"
)

// ErrMessageNotFound is returned when the requested message does not exist.
var ErrMessageNotFound = errors.New("message not found")

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// MessageRepository is the persistence surface the service needs.
type MessageRepository interface {
	List(ctx context.Context, params repository.ListParams) ([]repository.MessageSummary, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.InboundMessage, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service implements the admin message operations.
type Service struct {
	repo        MessageRepository
	attachments attachment.Store
	sanitizer   sanitizer.HTMLSanitizer
	logger      *slog.Logger
}

// ServiceConfig contains the service's collaborators.
type ServiceConfig struct {
	Repo        MessageRepository
	Attachments attachment.Store
	Sanitizer   sanitizer.HTMLSanitizer
	Logger      *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	san := cfg.Sanitizer
	if san == nil {
		san = sanitizer.NewHTMLSanitizer()
	}
	return &Service{
		repo:        cfg.Repo,
		attachments: cfg.Attachments,
		sanitizer:   san,
		logger:      logger,
	}
}

// ListOptions are the caller-facing list parameters before clamping.
type ListOptions struct {
	Page            int    `validate:"omitempty,min=1"`
	Limit           int    `validate:"omitempty,min=1,max=100"`
	Search          string `validate:"omitempty,max=200"`
	IncludeArchived bool
}

// DeleteResult reports what a delete removed.
type DeleteResult struct {
	ID                 uuid.UUID
	AttachmentsRemoved int
}

// List returns one page of message summaries plus the total match count.
// Out-of-range paging values fall back to defaults rather than erroring.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]repository.MessageSummary, int, error) {
	params := repository.ListParams{
		Page:            opts.Page,
		Limit:           opts.Limit,
		Search:          opts.Search,
		IncludeArchived: opts.IncludeArchived,
	}
	if params.Page < 1 {
		params.Page = defaultPage
	}
	if params.Limit < 1 {
		params.Limit = defaultLimit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	summaries, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}
	return summaries, total, nil
}

// Get returns one message with its HTML body sanitized for display.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.InboundMessage, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}

	if msg.BodyHTML != nil {
		clean := s.sanitizer.Sanitize(*msg.BodyHTML)
		msg.BodyHTML = &clean
	}
	return msg, nil
}

// SetArchived flips the archived flag. The operation is idempotent.
func (s *Service) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("updating archived flag for %s: %w", id, err)
	}
	return nil
}

// Delete removes a message's attachment files and then its row. A
// storage path that is already gone does not fail the delete; other
// removal errors are logged and skipped so the row still goes away.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}

	removed := 0
	for _, att := range msg.Attachments {
		if att.StoragePath == "" {
			continue
		}
		if err := s.attachments.Remove(ctx, att.StoragePath); err != nil {
			s.logger.Warn("failed to remove attachment file",
				"message_id", id, "path", att.StoragePath, "error", err)
			continue
		}
		removed++
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("deleting message %s: %w", id, err)
	}

	s.logger.Info("message deleted", "message_id", id, "attachments_removed", removed)
	return &DeleteResult{ID: id, AttachmentsRemoved: removed}, nil
}
