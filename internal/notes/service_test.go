package notes

import (
	"context"
	"errors"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}); err != nil {
		t.Fatalf("failed to migrate note schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestCreateAndFindByID(t *testing.T) {
	service := newTestService(t)

	created, err := service.Create(context.Background(), CreateRequest{
		OrganizationID: "org-1",
		Title:          "Plan",
		Content:        "v1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.NoteID == "" {
		t.Fatalf("expected generated note id")
	}

	found, err := service.FindByID(context.Background(), created.NoteID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found.Title != "Plan" || found.Content != "v1" || found.OrganizationID != "org-1" {
		t.Fatalf("unexpected note: %+v", found)
	}
}

func TestFindByIDUnknownNote(t *testing.T) {
	service := newTestService(t)

	if _, err := service.FindByID(context.Background(), "missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound, got %v", err)
	}
	if _, err := service.FindByID(context.Background(), "  "); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound for blank id, got %v", err)
	}
}

func TestCreateRequiresOrganization(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Create(context.Background(), CreateRequest{Title: "orphan"}); !errors.Is(err, ErrInvalidNote) {
		t.Fatalf("expected ErrInvalidNote, got %v", err)
	}
}
