package parser

import "time"

// Envelope carries the protocol-reported message metadata. It is used as
// a fallback when the MIME headers are missing or unparseable: IMAP
// supplies it from the ENVELOPE and INTERNALDATE fetch items, POP3
// leaves most fields empty.
type Envelope struct {
	MessageID    string
	Subject      string
	FromName     string
	FromEmail    string
	Date         time.Time
	InternalDate time.Time
}

// Message is the normalized result of parsing one raw MIME message.
// To and Cc are nil when the corresponding header is absent or yields
// no resolvable addresses. Date is the zero value when neither the
// Date header nor the protocol internal date is known.
type Message struct {
	MessageID   string
	FromName    string
	FromEmail   string
	To          []string
	Cc          []string
	Subject     string
	Text        string
	HTML        string
	Date        time.Time
	Attachments []Attachment
}

// Attachment is a decoded MIME part carrying file content. ContentID is
// set for inline parts referenced from the HTML body (cid: URLs).
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// ParseError describes a failure to parse a raw message.
type ParseError struct {
	Stage   string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + e.Stage + ": " + e.Message
}
