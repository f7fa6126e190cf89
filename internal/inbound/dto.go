package inbound

import (
	"time"

	"github.com/google/uuid"

	"github.com/cmclass/inbound-mail/internal/repository"
)

// MessageSummaryResponse represents one row in a message listing
type MessageSummaryResponse struct {
	ID              uuid.UUID  `json:"id"`
	MessageID       *string    `json:"message_id,omitempty"`
	Protocol        string     `json:"protocol"`
	Mailbox         string     `json:"mailbox"`
	FromName        *string    `json:"from_name,omitempty"`
	FromEmail       *string    `json:"from_email,omitempty"`
	ToEmails        []string   `json:"to_emails,omitempty"`
	Subject         *string    `json:"subject,omitempty"`
	PreviewText     string     `json:"preview_text"`
	ReceivedAt      *time.Time `json:"received_at,omitempty"`
	Archived        bool       `json:"archived"`
	AttachmentCount int        `json:"attachment_count"`
	SizeBytes       int64      `json:"size_bytes"`
	CreatedAt       time.Time  `json:"created_at"`
}

// MessageResponse represents a full message in API responses
type MessageResponse struct {
	ID          uuid.UUID                       `json:"id"`
	MessageID   *string                         `json:"message_id,omitempty"`
	SourceID    *string                         `json:"source_id,omitempty"`
	Protocol    string                          `json:"protocol"`
	Mailbox     string                          `json:"mailbox"`
	FromName    *string                         `json:"from_name,omitempty"`
	FromEmail   *string                         `json:"from_email,omitempty"`
	ToEmails    []string                        `json:"to_emails,omitempty"`
	CcEmails    []string                        `json:"cc_emails,omitempty"`
	Subject     *string                         `json:"subject,omitempty"`
	BodyText    *string                         `json:"body_text,omitempty"`
	BodyHTML    *string                         `json:"body_html,omitempty"`
	ReceivedAt  *time.Time                      `json:"received_at,omitempty"`
	Archived    bool                            `json:"archived"`
	Attachments []repository.StoredAttachment   `json:"attachments,omitempty"`
	SizeBytes   int64                           `json:"size_bytes"`
	CreatedAt   time.Time                       `json:"created_at"`
}

// ListMessagesResponse represents the response for listing messages
type ListMessagesResponse struct {
	Messages   []MessageSummaryResponse `json:"messages"`
	Pagination PaginationInfo           `json:"pagination"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
}

// ArchiveMessageResponse represents the response for archive/unarchive
type ArchiveMessageResponse struct {
	ID       uuid.UUID `json:"id"`
	Archived bool      `json:"archived"`
}

// DeleteMessageResponse represents the response for deleting a message
type DeleteMessageResponse struct {
	ID                 uuid.UUID `json:"id"`
	AttachmentsRemoved int       `json:"attachments_removed"`
}

// ToMessageSummaryResponse converts a summary row to its response DTO
func ToMessageSummaryResponse(m *repository.MessageSummary) MessageSummaryResponse {
	return MessageSummaryResponse{
		ID:              m.ID,
		MessageID:       m.MessageID,
		Protocol:        m.Protocol,
		Mailbox:         m.Mailbox,
		FromName:        m.FromName,
		FromEmail:       m.FromEmail,
		ToEmails:        m.ToEmails,
		Subject:         m.Subject,
		PreviewText:     m.PreviewText,
		ReceivedAt:      m.ReceivedAt,
		Archived:        m.Archived,
		AttachmentCount: m.AttachmentCount,
		SizeBytes:       m.SizeBytes,
		CreatedAt:       m.CreatedAt,
	}
}

// ToMessageResponse converts a message row to its response DTO
func ToMessageResponse(m *repository.InboundMessage) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		MessageID:   m.MessageID,
		SourceID:    m.SourceID,
		Protocol:    m.Protocol,
		Mailbox:     m.Mailbox,
		FromName:    m.FromName,
		FromEmail:   m.FromEmail,
		ToEmails:    m.ToEmails,
		CcEmails:    m.CcEmails,
		Subject:     m.Subject,
		BodyText:    m.BodyText,
		BodyHTML:    m.BodyHTML,
		ReceivedAt:  m.ReceivedAt,
		Archived:    m.Archived,
		Attachments: m.Attachments,
		SizeBytes:   m.SizeBytes,
		CreatedAt:   m.CreatedAt,
	}
}

// CalculateTotalPages returns the number of pages for a count and page size
func CalculateTotalPages(totalCount, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := totalCount / perPage
	if totalCount%perPage != 0 {
		pages++
	}
	return pages
}
