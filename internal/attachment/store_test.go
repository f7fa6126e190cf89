package attachment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"pgregory.net/rapid"

	"github.com/cmclass/inbound-mail/internal/parser"
)

func TestStorageNameFromContentType(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		wantPrefix  string
		wantExt     string
	}{
		{"pdf without filename", "", "application/pdf", "attachment-", ".pdf"},
		{"png without filename", "", "image/png", "attachment-", ".png"},
		{"unknown type", "", "application/x-custom", "attachment-", ".bin"},
		{"filename wins", "report.txt", "application/pdf", "report-", ".txt"},
		{"content type with params", "", "text/html; charset=utf-8", "attachment-", ".html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StorageName(tt.filename, tt.contentType)
			if err != nil {
				t.Fatalf("StorageName() error: %v", err)
			}
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("StorageName() = %q, want prefix %q", got, tt.wantPrefix)
			}
			if !strings.HasSuffix(got, tt.wantExt) {
				t.Errorf("StorageName() = %q, want extension %q", got, tt.wantExt)
			}
		})
	}
}

func TestStorageNameTruncatesLongBase(t *testing.T) {
	long := strings.Repeat("a", 200) + ".pdf"
	got, err := StorageName(long, "")
	if err != nil {
		t.Fatal(err)
	}
	// base (60) + "-" + 12 hex chars + ".pdf"
	if len(got) > 60+1+12+4 {
		t.Errorf("name too long: %d chars (%q)", len(got), got)
	}
}

func TestStorageNameSanitizesBase(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		filename := rapid.String().Draw(t, "filename")
		got, err := StorageName(filename, "image/png")
		if err != nil {
			t.Fatalf("StorageName() error: %v", err)
		}

		base := got[:strings.LastIndex(got, "-")]
		for _, r := range base {
			ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'
			if !ok {
				t.Fatalf("unsanitized rune %q in %q", r, got)
			}
		}
		if strings.HasPrefix(got, ".") {
			t.Fatalf("storage name starts with dot: %q", got)
		}
		if strings.Contains(got, "/") || strings.Contains(got, "\\") {
			t.Fatalf("storage name contains path separator: %q", got)
		}
	})
}

func TestLocalStoreSaveAndRemove(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/files")

	att := parser.Attachment{
		Filename:    "photo.png",
		ContentType: "image/png",
		Content:     []byte{0x89, 0x50, 0x4e, 0x47},
	}

	saved, err := store.Save(context.Background(), att, "2024-05-01")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if saved.Filename != "photo.png" {
		t.Errorf("Filename = %q", saved.Filename)
	}
	if saved.Size != 4 {
		t.Errorf("Size = %d", saved.Size)
	}
	if !strings.HasPrefix(saved.StoragePath, "attachments/2024-05-01/") {
		t.Errorf("StoragePath = %q, want date partition", saved.StoragePath)
	}
	if !strings.HasPrefix(saved.URL, "/files/attachments/2024-05-01/") {
		t.Errorf("URL = %q", saved.URL)
	}

	abs := filepath.Join(root, filepath.FromSlash(saved.StoragePath))
	if _, err := os.Stat(abs); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	if err := store.Remove(context.Background(), saved.StoragePath); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("file still present after Remove")
	}
}

func TestLocalStoreDuplicateFilenames(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/files")

	att := parser.Attachment{
		Filename:    "scan.pdf",
		ContentType: "application/pdf",
		Content:     []byte("first"),
	}

	a, err := store.Save(context.Background(), att, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}

	att.Content = []byte("second")
	b, err := store.Save(context.Background(), att, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}

	if a.StoragePath == b.StoragePath {
		t.Errorf("identical declared filenames produced the same path: %q", a.StoragePath)
	}
}

func TestLocalStoreEmptyContent(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/files")

	_, err := store.Save(context.Background(), parser.Attachment{Filename: "x.txt"}, "2024-05-01")
	if err != ErrEmptyContent {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestLocalStoreRemoveMissingFile(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/files")

	if err := store.Remove(context.Background(), "attachments/2024-05-01/gone.pdf"); err != nil {
		t.Errorf("Remove of missing file should succeed, got %v", err)
	}
}

func TestFileServerServesSavedURL(t *testing.T) {
	for _, baseURL := range []string{"/files", "/files/"} {
		t.Run(baseURL, func(t *testing.T) {
			root := t.TempDir()
			store := NewLocalStore(root, baseURL)

			content := []byte("%PDF-1.4 invoice body")
			saved, err := store.Save(context.Background(), parser.Attachment{
				Filename:    "invoice.pdf",
				ContentType: "application/pdf",
				Content:     content,
			}, "2024-05-01")
			if err != nil {
				t.Fatalf("Save() error: %v", err)
			}

			r := chi.NewRouter()
			pattern, files := FileServer(baseURL, root)
			r.Get(pattern, files.ServeHTTP)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, saved.URL, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s = %d, want %d", saved.URL, rec.Code, http.StatusOK)
			}
			if !bytes.Equal(rec.Body.Bytes(), content) {
				t.Errorf("served body does not match stored content")
			}
		})
	}
}
