package repository

import (
	"time"

	"github.com/google/uuid"
)

// StoredAttachment is the persisted reference to one attachment file,
// kept as an ordered JSONB list on the message row.
type StoredAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	StoragePath string `json:"storagePath"`
	URL         string `json:"url"`
}

// InboundMessage represents one ingested mail message in the database.
// MessageID and (Protocol, SourceID, Mailbox) are the dedup keys; no two
// rows may share either. Attachments is nil when the message had none.
type InboundMessage struct {
	ID          uuid.UUID          `db:"id"`
	MessageID   *string            `db:"message_id"`
	SourceID    *string            `db:"source_id"`
	Protocol    string             `db:"protocol"`
	Mailbox     string             `db:"mailbox"`
	FromName    *string            `db:"from_name"`
	FromEmail   *string            `db:"from_email"`
	ToEmails    []string           `db:"to_emails"`
	CcEmails    []string           `db:"cc_emails"`
	Subject     *string            `db:"subject"`
	BodyText    *string            `db:"body_text"`
	BodyHTML    *string            `db:"body_html"`
	ReceivedAt  *time.Time         `db:"received_at"`
	Archived    bool               `db:"archived"`
	Attachments []StoredAttachment `db:"attachments"`
	SizeBytes   int64              `db:"size_bytes"`
	CreatedAt   time.Time          `db:"created_at"`
}

// DedupKeys holds the identifiers checked before insert. Empty fields
// are left out of the check.
type DedupKeys struct {
	MessageID string
	Protocol  string
	Mailbox   string
	SourceID  string
}

// ListParams holds parameters for listing inbound messages.
type ListParams struct {
	Page            int
	Limit           int
	Search          string
	IncludeArchived bool
}

// MessageSummary is the list-view projection of a message: a truncated
// plain-text preview instead of the full bodies.
type MessageSummary struct {
	ID              uuid.UUID  `db:"id"`
	MessageID       *string    `db:"message_id"`
	Protocol        string     `db:"protocol"`
	Mailbox         string     `db:"mailbox"`
	FromName        *string    `db:"from_name"`
	FromEmail       *string    `db:"from_email"`
	ToEmails        []string   `db:"to_emails"`
	Subject         *string    `db:"subject"`
	PreviewText     string     `db:"preview_text"`
	ReceivedAt      *time.Time `db:"received_at"`
	Archived        bool       `db:"archived"`
	AttachmentCount int        `db:"attachment_count"`
	SizeBytes       int64      `db:"size_bytes"`
	CreatedAt       time.Time  `db:"created_at"`
}
