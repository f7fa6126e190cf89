// Package parser converts raw RFC 5322 message bytes into the
// normalized fields the ingestion pipeline persists.
package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// MessageParser parses raw MIME messages using go-message.
type MessageParser struct{}

// New creates a new MessageParser.
func New() *MessageParser {
	return &MessageParser{}
}

// Parse parses raw message bytes into a Message, filling gaps from the
// protocol envelope. Header-level values prefer the parsed message and
// fall back to the envelope; the received date additionally falls back
// to the protocol internal date.
func (p *MessageParser) Parse(raw []byte, env Envelope) (*Message, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Stage: "read", Message: "empty message data"}
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Stage: "read", Message: err.Error()}
	}
	defer mr.Close()

	msg := &Message{}

	p.extractHeaders(mr, env, msg)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part does not discard what was already
			// extracted from earlier parts.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			p.readInlinePart(part.Body, h, msg)
		case *mail.AttachmentHeader:
			p.readAttachmentPart(part.Body, h, msg)
		}
	}

	return msg, nil
}

func (p *MessageParser) extractHeaders(mr *mail.Reader, env Envelope, msg *Message) {
	h := mr.Header

	if id, err := h.MessageID(); err == nil && id != "" {
		msg.MessageID = id
	} else {
		msg.MessageID = strings.Trim(env.MessageID, "<>")
	}

	if subject, err := h.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	} else {
		msg.Subject = env.Subject
	}

	// First From address only; envelope sender is the fallback.
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromName = from[0].Name
		msg.FromEmail = from[0].Address
	} else {
		msg.FromName = env.FromName
		msg.FromEmail = env.FromEmail
	}

	msg.To = addressStrings(h, "To")
	msg.Cc = addressStrings(h, "Cc")

	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.Date = date
	} else if !env.Date.IsZero() {
		msg.Date = env.Date
	} else {
		msg.Date = env.InternalDate
	}
}

// addressStrings flattens an address header into plain address strings,
// dropping entries without a resolvable address. A header that is
// missing or yields nothing comes back as nil.
func addressStrings(h mail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}

	var out []string
	for _, a := range addrs {
		if a == nil || a.Address == "" {
			continue
		}
		out = append(out, a.Address)
	}
	return out
}

func (p *MessageParser) readInlinePart(body io.Reader, h *mail.InlineHeader, msg *Message) {
	contentType, ctParams, _ := h.ContentType()

	data, err := io.ReadAll(body)
	if err != nil {
		return
	}

	switch {
	case strings.HasPrefix(contentType, "text/plain"):
		if msg.Text == "" {
			msg.Text = string(data)
		}
	case strings.HasPrefix(contentType, "text/html"):
		if msg.HTML == "" {
			msg.HTML = string(data)
		}
	default:
		// Inline non-text parts (typically cid-referenced images) are
		// kept as attachments so the HTML body can be rendered.
		if len(data) == 0 {
			return
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    inlineFilename(h, ctParams),
			ContentType: contentType,
			ContentID:   contentID(h.Get("Content-Id")),
			Content:     data,
		})
	}
}

// inlineFilename recovers a display name for an inline part from its
// Content-Disposition parameters, falling back to the Content-Type name
// parameter. Inline parts carry no mandatory filename, so empty is a
// valid answer.
func inlineFilename(h *mail.InlineHeader, ctParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return ctParams["name"]
}

func (p *MessageParser) readAttachmentPart(body io.Reader, h *mail.AttachmentHeader, msg *Message) {
	data, err := io.ReadAll(body)
	if err != nil {
		return
	}

	filename, _ := h.Filename()
	ct, _, _ := h.ContentType()
	if ct == "" {
		ct = "application/octet-stream"
	}

	msg.Attachments = append(msg.Attachments, Attachment{
		Filename:    filename,
		ContentType: ct,
		ContentID:   contentID(h.Get("Content-Id")),
		Content:     data,
	})
}

// contentID strips the angle brackets RFC 2392 wraps around Content-ID
// values.
func contentID(v string) string {
	return strings.Trim(strings.TrimSpace(v), "<>")
}
