package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cmclass/inbound-mail/internal/attachment"
	"github.com/cmclass/inbound-mail/internal/parser"
	"github.com/cmclass/inbound-mail/internal/repository"
)

// fakeRepo serves scripted messages and records mutations.
type fakeRepo struct {
	messages map[uuid.UUID]*repository.InboundMessage

	listParams repository.ListParams
	summaries  []repository.MessageSummary
	total      int
	listErr    error

	deleted  []uuid.UUID
	archived map[uuid.UUID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		messages: map[uuid.UUID]*repository.InboundMessage{},
		archived: map[uuid.UUID]bool{},
	}
}

func (r *fakeRepo) List(_ context.Context, params repository.ListParams) ([]repository.MessageSummary, int, error) {
	r.listParams = params
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	return r.summaries, r.total, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.InboundMessage, error) {
	msg, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (r *fakeRepo) SetArchived(_ context.Context, id uuid.UUID, archived bool) error {
	if _, ok := r.messages[id]; !ok {
		return repository.ErrMessageNotFound
	}
	r.archived[id] = archived
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.messages[id]; !ok {
		return repository.ErrMessageNotFound
	}
	delete(r.messages, id)
	r.deleted = append(r.deleted, id)
	return nil
}

// fakeFiles is an attachment store tracking removals.
type fakeFiles struct {
	removed   []string
	removeErr map[string]error
}

func (f *fakeFiles) Save(_ context.Context, att parser.Attachment, day string) (*attachment.Saved, error) {
	return nil, errors.New("not used")
}

func (f *fakeFiles) Remove(_ context.Context, storagePath string) error {
	if err, ok := f.removeErr[storagePath]; ok {
		return err
	}
	f.removed = append(f.removed, storagePath)
	return nil
}

func strptr(s string) *string { return &s }

func newTestService(repo *fakeRepo, files *fakeFiles) *Service {
	return NewService(ServiceConfig{Repo: repo, Attachments: files})
}

func TestListClampsParameters(t *testing.T) {
	tests := []struct {
		name      string
		opts      ListOptions
		wantPage  int
		wantLimit int
	}{
		{"defaults", ListOptions{}, 1, 20},
		{"negative page", ListOptions{Page: -3, Limit: 10}, 1, 10},
		{"zero limit", ListOptions{Page: 2}, 2, 20},
		{"limit capped", ListOptions{Page: 1, Limit: 500}, 1, 100},
		{"passthrough", ListOptions{Page: 4, Limit: 50}, 4, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, &fakeFiles{})

			if _, _, err := svc.List(context.Background(), tt.opts); err != nil {
				t.Fatalf("List: %v", err)
			}
			if repo.listParams.Page != tt.wantPage {
				t.Errorf("page = %d, want %d", repo.listParams.Page, tt.wantPage)
			}
			if repo.listParams.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", repo.listParams.Limit, tt.wantLimit)
			}
		})
	}
}

func TestListPassesSearchAndArchivedToggle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeFiles{})

	_, _, err := svc.List(context.Background(), ListOptions{Search: "invoice", IncludeArchived: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.listParams.Search != "invoice" {
		t.Errorf("search = %q", repo.listParams.Search)
	}
	if !repo.listParams.IncludeArchived {
		t.Error("include_archived not passed through")
	}
}

func TestGetSanitizesHTMLBody(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.messages[id] = &repository.InboundMessage{
		ID:       id,
		Protocol: "imap",
		Mailbox:  "INBOX",
		BodyHTML: strptr(`<p>Hello</p><script>alert("xss")</script>`),
	}

	svc := newTestService(repo, &fakeFiles{})
	msg, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if msg.BodyHTML == nil {
		t.Fatal("expected HTML body")
	}
	if strings.Contains(*msg.BodyHTML, "<script") || strings.Contains(*msg.BodyHTML, "alert") {
		t.Errorf("script survived sanitization: %q", *msg.BodyHTML)
	}
	if !strings.Contains(*msg.BodyHTML, "Hello") {
		t.Errorf("benign content stripped: %q", *msg.BodyHTML)
	}
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeFiles{})
	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestSetArchived(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.messages[id] = &repository.InboundMessage{ID: id}

	svc := newTestService(repo, &fakeFiles{})
	if err := svc.SetArchived(context.Background(), id, true); err != nil {
		t.Fatalf("SetArchived: %v", err)
	}
	if !repo.archived[id] {
		t.Error("archived flag not set")
	}

	if err := svc.SetArchived(context.Background(), id, false); err != nil {
		t.Fatalf("SetArchived: %v", err)
	}
	if repo.archived[id] {
		t.Error("archived flag not cleared")
	}

	if err := svc.SetArchived(context.Background(), uuid.New(), true); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestDeleteRemovesAttachmentFilesThenRow(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.messages[id] = &repository.InboundMessage{
		ID: id,
		Attachments: []repository.StoredAttachment{
			{Filename: "a.pdf", StoragePath: "attachments/2026-08-30/a.pdf"},
			{Filename: "b.png", StoragePath: "attachments/2026-08-30/b.png"},
		},
	}

	files := &fakeFiles{}
	svc := newTestService(repo, files)

	result, err := svc.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if result.AttachmentsRemoved != 2 {
		t.Errorf("attachments removed = %d, want 2", result.AttachmentsRemoved)
	}
	if len(files.removed) != 2 {
		t.Fatalf("expected 2 file removals, got %v", files.removed)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != id {
		t.Errorf("row not deleted: %v", repo.deleted)
	}
}

func TestDeleteToleratesFailedFileRemoval(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.messages[id] = &repository.InboundMessage{
		ID: id,
		Attachments: []repository.StoredAttachment{
			{Filename: "gone.pdf", StoragePath: "attachments/2026-08-30/gone.pdf"},
		},
	}

	files := &fakeFiles{
		removeErr: map[string]error{"attachments/2026-08-30/gone.pdf": errors.New("permission denied")},
	}
	svc := newTestService(repo, files)

	result, err := svc.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("Delete should tolerate file removal errors: %v", err)
	}
	if result.AttachmentsRemoved != 0 {
		t.Errorf("attachments removed = %d, want 0", result.AttachmentsRemoved)
	}
	if len(repo.deleted) != 1 {
		t.Error("row should still be deleted")
	}
}

func TestDeleteWithoutAttachments(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.messages[id] = &repository.InboundMessage{ID: id}

	svc := newTestService(repo, &fakeFiles{})
	result, err := svc.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if result.AttachmentsRemoved != 0 {
		t.Errorf("attachments removed = %d, want 0", result.AttachmentsRemoved)
	}
}

func TestDeleteNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeFiles{})
	if _, err := svc.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}
