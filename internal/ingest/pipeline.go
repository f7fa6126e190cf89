// Package ingest drives mail ingestion: a timer-driven poller pulls
// candidate messages from a protocol source and a pipeline normalizes,
// deduplicates, and persists them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cmclass/inbound-mail/internal/attachment"
	"github.com/cmclass/inbound-mail/internal/mailsource"
	"github.com/cmclass/inbound-mail/internal/metrics"
	"github.com/cmclass/inbound-mail/internal/parser"
	"github.com/cmclass/inbound-mail/internal/repository"
)

// MessageStore is the persistence surface the pipeline needs.
type MessageStore interface {
	Exists(ctx context.Context, keys repository.DedupKeys) (bool, error)
	ExistsBySource(ctx context.Context, protocol, mailbox, sourceID string) (bool, error)
	Create(ctx context.Context, msg *repository.InboundMessage) error
}

// Pipeline turns one raw fetched message into one persisted row.
type Pipeline struct {
	parser      *parser.MessageParser
	store       MessageStore
	attachments attachment.Store
	logger      *slog.Logger
}

// PipelineConfig contains the pipeline's collaborators.
type PipelineConfig struct {
	Store       MessageStore
	Attachments attachment.Store
	Logger      *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		parser:      parser.New(),
		store:       cfg.Store,
		attachments: cfg.Attachments,
		logger:      logger,
	}
}

// SeenBefore reports whether a protocol-native identifier has already
// been ingested for a mailbox. The POP3 path calls this before fetching
// to skip the full retrieve+parse for known mail.
func (p *Pipeline) SeenBefore(ctx context.Context, protocol, mailbox, sourceID string) (bool, error) {
	return p.store.ExistsBySource(ctx, protocol, mailbox, sourceID)
}

// StoreMessage parses, deduplicates, and persists one raw message.
// It returns true when a new row was created and false when the message
// was already ingested. The dedup check runs before any attachment is
// written so a duplicate never leaves orphaned files behind.
func (p *Pipeline) StoreMessage(ctx context.Context, raw *mailsource.RawMessage, protocol, mailbox string) (bool, error) {
	msg, err := p.parser.Parse(raw.Raw, raw.Envelope)
	if err != nil {
		return false, fmt.Errorf("parsing message %s: %w", raw.SourceID, err)
	}

	exists, err := p.store.Exists(ctx, repository.DedupKeys{
		MessageID: msg.MessageID,
		Protocol:  protocol,
		Mailbox:   mailbox,
		SourceID:  raw.SourceID,
	})
	if err != nil {
		return false, fmt.Errorf("checking for duplicate of %s: %w", raw.SourceID, err)
	}
	if exists {
		metrics.MessagesDuplicate.Inc()
		return false, nil
	}

	saved := p.saveAttachments(ctx, msg.Attachments)

	now := time.Now().UTC()
	row := &repository.InboundMessage{
		ID:          uuid.New(),
		MessageID:   optional(msg.MessageID),
		SourceID:    optional(raw.SourceID),
		Protocol:    protocol,
		Mailbox:     mailbox,
		FromName:    optional(msg.FromName),
		FromEmail:   optional(msg.FromEmail),
		ToEmails:    msg.To,
		CcEmails:    msg.Cc,
		Subject:     optional(msg.Subject),
		BodyText:    optional(msg.Text),
		BodyHTML:    optional(msg.HTML),
		Archived:    false,
		Attachments: saved,
		SizeBytes:   int64(len(raw.Raw)),
		CreatedAt:   now,
	}
	if !msg.Date.IsZero() {
		d := msg.Date
		row.ReceivedAt = &d
	}

	if err := p.store.Create(ctx, row); err != nil {
		return false, fmt.Errorf("persisting message %s: %w", raw.SourceID, err)
	}

	metrics.MessagesStored.Inc()
	return true, nil
}

// saveAttachments writes attachment payloads best-effort: a failed or
// empty attachment is logged and dropped, the message itself is still
// persisted. Returns nil when nothing was saved.
func (p *Pipeline) saveAttachments(ctx context.Context, atts []parser.Attachment) []repository.StoredAttachment {
	if len(atts) == 0 {
		return nil
	}

	day := time.Now().UTC().Format("2006-01-02")

	var saved []repository.StoredAttachment
	for _, att := range atts {
		s, err := p.attachments.Save(ctx, att, day)
		if err != nil {
			if errors.Is(err, attachment.ErrEmptyContent) {
				p.logger.Warn("skipping attachment without content",
					"filename", att.Filename)
			} else {
				p.logger.Warn("failed to save attachment",
					"filename", att.Filename, "error", err)
			}
			continue
		}
		metrics.AttachmentBytesWritten.Add(float64(s.Size))
		saved = append(saved, repository.StoredAttachment{
			Filename:    s.Filename,
			ContentType: s.ContentType,
			Size:        s.Size,
			ContentID:   s.ContentID,
			StoragePath: s.StoragePath,
			URL:         s.URL,
		})
	}
	return saved
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
