// Package attachment persists MIME attachment payloads and returns
// retrievable references. The default backend writes to a
// date-partitioned directory tree under a public root; an S3-compatible
// backend is available for object storage deployments.
package attachment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cmclass/inbound-mail/internal/parser"
)

// ErrEmptyContent reports an attachment part with no decodable payload.
// Such attachments are skipped, not fatal.
var ErrEmptyContent = errors.New("attachment has no content")

// Saved describes one stored attachment. StoragePath is relative to the
// store's root; URL is servable by the HTTP layer.
type Saved struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	StoragePath string `json:"storagePath"`
	URL         string `json:"url"`
}

// Store persists attachment payloads and removes them on message delete.
type Store interface {
	Save(ctx context.Context, att parser.Attachment, day string) (*Saved, error)
	Remove(ctx context.Context, storagePath string) error
}

// FileServer builds the HTTP route serving locally stored attachment
// files. The handler resolves request paths under root exactly the way
// LocalStore builds URLs under baseURL, so every Saved.URL the store
// returns maps onto the file it wrote.
func FileServer(baseURL, root string) (pattern string, h http.Handler) {
	base := strings.TrimRight(baseURL, "/")
	return base + "/*", http.StripPrefix(base+"/", http.FileServer(http.Dir(root)))
}

// contentTypeExtensions maps common content types to file extensions
// used when the declared filename carries none.
var contentTypeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"text/html":       ".html",
	"application/zip": ".zip",
}

const (
	maxBaseNameLen  = 60
	suffixByteLen   = 6
	defaultBaseName = "attachment"
	storagePrefix   = "attachments"
)

// LocalStore writes attachments under a fixed public root on disk.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
// URLs are produced by joining baseURL with the relative storage path.
func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Save writes one attachment into the partition directory for the given
// UTC calendar day (ISO date), creating the directory if needed. The
// generated on-disk name carries a random hex suffix so that repeated
// declared filenames within a day never collide.
func (s *LocalStore) Save(ctx context.Context, att parser.Attachment, day string) (*Saved, error) {
	if len(att.Content) == 0 {
		return nil, ErrEmptyContent
	}

	name, err := StorageName(att.Filename, att.ContentType)
	if err != nil {
		return nil, err
	}

	relDir := path.Join(storagePrefix, day)
	dir := filepath.Join(s.root, filepath.FromSlash(relDir))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating attachment directory %s: %w", dir, err)
	}

	relPath := path.Join(relDir, name)
	if err := os.WriteFile(filepath.Join(s.root, filepath.FromSlash(relPath)), att.Content, 0644); err != nil {
		return nil, fmt.Errorf("writing attachment %s: %w", relPath, err)
	}

	displayName := att.Filename
	if displayName == "" {
		displayName = name
	}

	return &Saved{
		Filename:    displayName,
		ContentType: att.ContentType,
		Size:        int64(len(att.Content)),
		ContentID:   att.ContentID,
		StoragePath: relPath,
		URL:         s.baseURL + "/" + relPath,
	}, nil
}

// Remove unlinks a stored attachment file. A file that is already gone
// is not an error.
func (s *LocalStore) Remove(ctx context.Context, storagePath string) error {
	abs := filepath.Join(s.root, filepath.FromSlash(storagePath))
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing attachment %s: %w", storagePath, err)
	}
	return nil
}

// StorageName derives a collision-resistant on-disk filename from the
// declared filename and content type: sanitized base name (60 chars
// max), a 6-byte random hex suffix, and an extension resolved from the
// filename, the content type, or ".bin".
func StorageName(filename, contentType string) (string, error) {
	base := defaultBaseName
	ext := ""

	if filename != "" {
		ext = strings.ToLower(filepath.Ext(filename))
		base = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	if ext == "" {
		ext = extensionForContentType(contentType)
	}

	base = sanitizeBaseName(base)
	if base == "" {
		base = defaultBaseName
	}
	if len(base) > maxBaseNameLen {
		base = base[:maxBaseNameLen]
	}

	suffix := make([]byte, suffixByteLen)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generating filename suffix: %w", err)
	}

	return base + "-" + hex.EncodeToString(suffix) + ext, nil
}

// sanitizeBaseName restricts a filename base to [a-zA-Z0-9._-],
// replacing everything else with '-'. Leading dots are dropped so a
// name can never become hidden or traverse upward.
func sanitizeBaseName(base string) string {
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

func extensionForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := contentTypeExtensions[ct]; ok {
		return ext
	}
	return ".bin"
}
