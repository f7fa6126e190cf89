// Package repository provides PostgreSQL persistence for inbound mail.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository errors
var (
	ErrMessageNotFound = errors.New("inbound message not found")
)

// MessageRepo implements inbound message persistence using PostgreSQL.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo creates a new MessageRepo instance.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Exists reports whether a message matching any of the dedup keys is
// already persisted: a non-empty MessageID, or the full
// (protocol, source ID, mailbox) triple. With neither key present the
// check is vacuously false.
func (r *MessageRepo) Exists(ctx context.Context, keys DedupKeys) (bool, error) {
	var conds []string
	var args []interface{}
	argIdx := 1

	if keys.MessageID != "" {
		conds = append(conds, fmt.Sprintf("message_id = $%d", argIdx))
		args = append(args, keys.MessageID)
		argIdx++
	}
	if keys.SourceID != "" {
		conds = append(conds, fmt.Sprintf(
			"(protocol = $%d AND source_id = $%d AND mailbox = $%d)",
			argIdx, argIdx+1, argIdx+2,
		))
		args = append(args, keys.Protocol, keys.SourceID, keys.Mailbox)
		argIdx += 3
	}

	if len(conds) == 0 {
		return false, nil
	}

	query := "SELECT EXISTS(SELECT 1 FROM inbound_messages WHERE " + conds[0]
	for _, c := range conds[1:] {
		query += " OR " + c
	}
	query += ")"

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// ExistsBySource reports whether a message with the given protocol-native
// identifier has already been ingested for a mailbox. The POP3 path uses
// this as its pre-fetch filter.
func (r *MessageRepo) ExistsBySource(ctx context.Context, protocol, mailbox, sourceID string) (bool, error) {
	return r.Exists(ctx, DedupKeys{
		Protocol: protocol,
		Mailbox:  mailbox,
		SourceID: sourceID,
	})
}

// Create inserts a new inbound message row.
func (r *MessageRepo) Create(ctx context.Context, msg *InboundMessage) error {
	toJSON, err := marshalStrings(msg.ToEmails)
	if err != nil {
		return fmt.Errorf("failed to encode to_emails: %w", err)
	}
	ccJSON, err := marshalStrings(msg.CcEmails)
	if err != nil {
		return fmt.Errorf("failed to encode cc_emails: %w", err)
	}

	var attJSON []byte
	if len(msg.Attachments) > 0 {
		attJSON, err = json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
	}

	query := `
		INSERT INTO inbound_messages (
			id, message_id, source_id, protocol, mailbox,
			from_name, from_email, to_emails, cc_emails,
			subject, body_text, body_html, received_at,
			archived, attachments, size_bytes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query,
		msg.ID,
		msg.MessageID,
		msg.SourceID,
		msg.Protocol,
		msg.Mailbox,
		msg.FromName,
		msg.FromEmail,
		toJSON,
		ccJSON,
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		msg.ReceivedAt,
		msg.Archived,
		attJSON,
		msg.SizeBytes,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbound message: %w", err)
	}
	return nil
}

// List retrieves messages with pagination and optional free-text search
// across subject, sender name/address, and recipient lists. Archived
// rows are hidden unless IncludeArchived is set. Results are ordered by
// received date then creation time, newest first.
func (r *MessageRepo) List(ctx context.Context, params ListParams) ([]MessageSummary, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	baseQuery := " FROM inbound_messages WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if !params.IncludeArchived {
		baseQuery += " AND archived = FALSE"
	}

	if params.Search != "" {
		baseQuery += fmt.Sprintf(` AND (
			subject ILIKE $%d OR
			from_name ILIKE $%d OR
			from_email ILIKE $%d OR
			to_emails::text ILIKE $%d OR
			cc_emails::text ILIKE $%d
		)`, argIdx, argIdx, argIdx, argIdx, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	countQuery := "SELECT COUNT(*)" + baseQuery
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	selectQuery := `
		SELECT
			id, message_id, protocol, mailbox,
			from_name, from_email, to_emails, subject,
			COALESCE(body_text, '') AS body_text,
			received_at, archived,
			COALESCE(jsonb_array_length(attachments), 0) AS attachment_count,
			size_bytes, created_at
	` + baseQuery

	selectQuery += " ORDER BY received_at DESC NULLS LAST, created_at DESC"

	offset := (params.Page - 1) * params.Limit
	selectQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []MessageSummary
	for rows.Next() {
		var m MessageSummary
		var toJSON []byte
		var bodyText string

		err := rows.Scan(
			&m.ID,
			&m.MessageID,
			&m.Protocol,
			&m.Mailbox,
			&m.FromName,
			&m.FromEmail,
			&toJSON,
			&m.Subject,
			&bodyText,
			&m.ReceivedAt,
			&m.Archived,
			&m.AttachmentCount,
			&m.SizeBytes,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}

		m.ToEmails = unmarshalStrings(toJSON)
		m.PreviewText = GeneratePreviewText(bodyText, 200)

		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, totalCount, nil
}

// GetByID retrieves a message with its full bodies and attachment list.
func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*InboundMessage, error) {
	query := `
		SELECT id, message_id, source_id, protocol, mailbox,
		       from_name, from_email, to_emails, cc_emails,
		       subject, body_text, body_html, received_at,
		       archived, attachments, size_bytes, created_at
		FROM inbound_messages
		WHERE id = $1
	`

	var m InboundMessage
	var toJSON, ccJSON, attJSON []byte

	row := r.db.QueryRowContext(ctx, query, id)
	err := row.Scan(
		&m.ID,
		&m.MessageID,
		&m.SourceID,
		&m.Protocol,
		&m.Mailbox,
		&m.FromName,
		&m.FromEmail,
		&toJSON,
		&ccJSON,
		&m.Subject,
		&m.BodyText,
		&m.BodyHTML,
		&m.ReceivedAt,
		&m.Archived,
		&attJSON,
		&m.SizeBytes,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	m.ToEmails = unmarshalStrings(toJSON)
	m.CcEmails = unmarshalStrings(ccJSON)
	if len(attJSON) > 0 {
		if err := json.Unmarshal(attJSON, &m.Attachments); err != nil {
			m.Attachments = nil
		}
	}

	return &m, nil
}

// SetArchived flips the archive flag on a message.
func (r *MessageRepo) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE inbound_messages SET archived = $2 WHERE id = $1`, id, archived)
	if err != nil {
		return fmt.Errorf("failed to update archive flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Delete removes a message row. Attachment file cleanup is the caller's
// responsibility and must happen before the row disappears.
func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM inbound_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// marshalStrings encodes a string slice as JSON, mapping nil to SQL NULL
// so "no header" stays distinguishable from an empty list.
func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
