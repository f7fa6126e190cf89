package parser

import (
	"strings"
	"testing"
	"time"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParsePlainText(t *testing.T) {
	raw := crlf(`From: Alice Example <alice@example.com>
To: shop@cmclass.io
Cc: bob@example.com, carol@example.com
Subject: Order question
Message-Id: <abc123@example.com>
Date: Mon, 02 Jan 2006 15:04:05 +0000
Content-Type: text/plain; charset=utf-8

Where is my order?
`)

	msg, err := New().Parse(raw, Envelope{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if msg.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.FromName != "Alice Example" || msg.FromEmail != "alice@example.com" {
		t.Errorf("From = %q <%q>", msg.FromName, msg.FromEmail)
	}
	if len(msg.To) != 1 || msg.To[0] != "shop@cmclass.io" {
		t.Errorf("To = %v", msg.To)
	}
	if len(msg.Cc) != 2 {
		t.Errorf("Cc = %v", msg.Cc)
	}
	if msg.Subject != "Order question" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "Where is my order?") {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.HTML != "" {
		t.Errorf("expected no HTML body, got %q", msg.HTML)
	}
	if msg.Date.IsZero() {
		t.Error("expected Date from header")
	}
}

func TestParseMultipartAlternative(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: shop@cmclass.io
Subject: Both bodies
Content-Type: multipart/alternative; boundary=b1

--b1
Content-Type: text/plain

plain body
--b1
Content-Type: text/html

<p>html body</p>
--b1--
`)

	msg, err := New().Parse(raw, Envelope{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if !strings.Contains(msg.Text, "plain body") {
		t.Errorf("Text = %q", msg.Text)
	}
	if !strings.Contains(msg.HTML, "<p>html body</p>") {
		t.Errorf("HTML = %q", msg.HTML)
	}
}

func TestParseAttachment(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: shop@cmclass.io
Subject: With attachment
Content-Type: multipart/mixed; boundary=b1

--b1
Content-Type: text/plain

see attached
--b1
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--b1--
`)

	msg, err := New().Parse(raw, Envelope{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "invoice.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if !strings.HasPrefix(string(att.Content), "%PDF-1.4") {
		t.Errorf("Content not decoded: %q", att.Content)
	}
}

func TestParseEnvelopeFallbacks(t *testing.T) {
	raw := crlf(`Content-Type: text/plain

body only
`)

	internal := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env := Envelope{
		MessageID:    "<env-id@example.com>",
		Subject:      "Envelope subject",
		FromName:     "Env Sender",
		FromEmail:    "env@example.com",
		InternalDate: internal,
	}

	msg, err := New().Parse(raw, env)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if msg.MessageID != "env-id@example.com" {
		t.Errorf("MessageID fallback = %q", msg.MessageID)
	}
	if msg.Subject != "Envelope subject" {
		t.Errorf("Subject fallback = %q", msg.Subject)
	}
	if msg.FromEmail != "env@example.com" || msg.FromName != "Env Sender" {
		t.Errorf("From fallback = %q <%q>", msg.FromName, msg.FromEmail)
	}
	if !msg.Date.Equal(internal) {
		t.Errorf("Date fallback = %s, want %s", msg.Date, internal)
	}
	if msg.To != nil {
		t.Errorf("expected nil To for missing header, got %v", msg.To)
	}
	if msg.Cc != nil {
		t.Errorf("expected nil Cc for missing header, got %v", msg.Cc)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := New().Parse(nil, Envelope{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParseInlineImageKeptAsAttachment(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: shop@cmclass.io
Subject: Inline image
Content-Type: multipart/related; boundary=b1

--b1
Content-Type: text/html

<img src="cid:logo@cmclass">
--b1
Content-Type: image/png
Content-Id: <logo@cmclass>
Content-Disposition: inline
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--b1--
`)

	msg, err := New().Parse(raw, Envelope{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected inline image as attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].ContentID != "logo@cmclass" {
		t.Errorf("ContentID = %q", msg.Attachments[0].ContentID)
	}
}

func TestParseInlineFilename(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    string
	}{
		{
			name:    "from content-disposition",
			headers: "Content-Disposition: inline; filename=\"logo.png\"\nContent-Type: image/png",
			want:    "logo.png",
		},
		{
			name:    "from content-type name",
			headers: "Content-Disposition: inline\nContent-Type: image/png; name=\"banner.png\"",
			want:    "banner.png",
		},
		{
			name:    "no name anywhere",
			headers: "Content-Disposition: inline\nContent-Type: image/png",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := crlf(`From: alice@example.com
To: shop@cmclass.io
Subject: Inline filename
Content-Type: multipart/related; boundary=b1

--b1
Content-Type: text/html

<p>body</p>
--b1
` + tt.headers + `
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--b1--
`)

			msg, err := New().Parse(raw, Envelope{})
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if len(msg.Attachments) != 1 {
				t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
			}
			if got := msg.Attachments[0].Filename; got != tt.want {
				t.Errorf("Filename = %q, want %q", got, tt.want)
			}
		})
	}
}
