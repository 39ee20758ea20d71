package organizations

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
	if err := db.AutoMigrate(&Membership{}); err != nil {
		t.Fatalf("failed to migrate membership schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestCheckAccessGrantsMembers(t *testing.T) {
	service := newTestService(t)
	if err := service.AddMember(context.Background(), Membership{
		OrganizationID: "org-1",
		UserID:         "user-1",
	}); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	if err := service.CheckAccess(context.Background(), "org-1", "user-1"); err != nil {
		t.Fatalf("expected member to be granted access, got %v", err)
	}
}

func TestCheckAccessDeniesNonMembers(t *testing.T) {
	service := newTestService(t)
	if err := service.AddMember(context.Background(), Membership{
		OrganizationID: "org-1",
		UserID:         "user-1",
	}); err != nil {
		t.Fatalf("failed to add member: %v", err)
	}

	if err := service.CheckAccess(context.Background(), "org-2", "user-1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for foreign organization, got %v", err)
	}
	if err := service.CheckAccess(context.Background(), "org-1", "user-2"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for unknown user, got %v", err)
	}
	if err := service.CheckAccess(context.Background(), "", "user-1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for blank organization, got %v", err)
	}
}
