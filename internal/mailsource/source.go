// Package mailsource abstracts the mail retrieval protocols behind a
// single capability: connect, list candidate messages, fetch, and
// acknowledge. The IMAP and POP3 variants are selected once at startup
// from configuration.
package mailsource

import (
	"context"

	"github.com/emersion/go-imap/v2"

	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/parser"
)

// Candidate identifies one message offered by the server during a poll.
// SourceID is the protocol-native identifier (IMAP UID or POP3 UIDL)
// used as a dedup key.
type Candidate struct {
	SourceID string

	uid imap.UID // IMAP only
	seq int      // POP3 message number
}

// NewCandidate builds a bare candidate from a source identifier. Real
// sessions attach their protocol handles internally; this constructor
// exists for fakes in tests.
func NewCandidate(sourceID string) Candidate {
	return Candidate{SourceID: sourceID}
}

// RawMessage is one fetched message: the raw RFC 5322 bytes plus
// whatever envelope metadata the protocol reported.
type RawMessage struct {
	SourceID string
	Raw      []byte
	Envelope parser.Envelope
}

// Session is one live protocol session against a mailbox. Callers must
// Close it regardless of errors; Close is safe after a failed call.
type Session interface {
	// ListCandidates returns up to max candidate messages, most recent
	// by server order. IMAP lists unseen messages; POP3 lists the full
	// UIDL catalogue (the caller filters already-ingested entries).
	ListCandidates(ctx context.Context, max int) ([]Candidate, error)

	// Fetch retrieves the raw message for one candidate.
	Fetch(ctx context.Context, cand Candidate) (*RawMessage, error)

	// Acknowledge marks the given candidates as processed on the
	// server. IMAP flags them seen in one batched call when mark-seen
	// is enabled; POP3 has no acknowledgement step.
	Acknowledge(ctx context.Context, cands []Candidate) error

	Close() error
}

// Source opens protocol sessions against a configured mailbox.
type Source interface {
	Protocol() config.Protocol
	Mailbox() string
	Connect(ctx context.Context) (Session, error)
}

// lastN keeps the newest max entries of an ascending server listing.
// Both protocols list oldest first, so the most recent messages sit at
// the tail. A max of zero or below means no bound.
func lastN[T any](items []T, max int) []T {
	if max > 0 && len(items) > max {
		return items[len(items)-max:]
	}
	return items
}

// New selects the protocol variant for the given configuration.
func New(cfg config.MailReceiverConfig) Source {
	if cfg.Protocol == config.ProtocolPOP3 {
		return newPOP3Source(cfg)
	}
	return newIMAPSource(cfg)
}
