package collab

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeDirectory struct {
	profiles map[string]Profile
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (Profile, error) {
	profile, ok := d.profiles[email]
	if !ok {
		return Profile{}, fmt.Errorf("no user for %s", email)
	}
	return profile, nil
}

type fakeNoteStore struct {
	records map[string]NoteRecord
}

func (s *fakeNoteStore) FindByID(_ context.Context, noteID string) (NoteRecord, error) {
	record, ok := s.records[noteID]
	if !ok {
		return NoteRecord{}, fmt.Errorf("no note %s", noteID)
	}
	return record, nil
}

type fakeAuthorizer struct {
	denied map[string]bool
}

func (a *fakeAuthorizer) CheckAccess(_ context.Context, organizationID, userID string) error {
	if a.denied[organizationID+"/"+userID] {
		return fmt.Errorf("user %s may not access %s", userID, organizationID)
	}
	return nil
}

type managerFixture struct {
	manager    *Manager
	authorizer *fakeAuthorizer
	now        time.Time
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	fixture := &managerFixture{
		authorizer: &fakeAuthorizer{denied: make(map[string]bool)},
		now:        time.Unix(1700000000, 0).UTC(),
	}

	directory := &fakeDirectory{profiles: map[string]Profile{
		"alice@example.com": {UserID: "user-alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Adams"},
		"bob@example.com":   {UserID: "user-bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Brown"},
		"carol@example.com": {UserID: "user-carol", Email: "carol@example.com", FirstName: "Carol", LastName: "Clark"},
	}}
	noteStore := &fakeNoteStore{records: map[string]NoteRecord{
		"note-1": {NoteID: "note-1", OrganizationID: "org-1", Title: "Plan", Content: "v1"},
		"note-2": {NoteID: "note-2", OrganizationID: "org-1", Title: "Roadmap", Content: "draft"},
		"note-3": {NoteID: "note-3", OrganizationID: "org-2", Title: "Budget", Content: "numbers"},
	}}

	manager, err := NewManager(ManagerConfig{
		Directory:  directory,
		Notes:      noteStore,
		Authorizer: fixture.authorizer,
		Clock:      func() time.Time { return fixture.now },
	})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	fixture.manager = manager
	return fixture
}

func (f *managerFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func mustJoin(t *testing.T, f *managerFixture, noteID, identity string) *SessionSnapshot {
	t.Helper()
	snapshot, err := f.manager.JoinNote(context.Background(), noteID, identity)
	if err != nil {
		t.Fatalf("join %s as %s failed: %v", noteID, identity, err)
	}
	if snapshot == nil {
		t.Fatalf("expected snapshot from join")
	}
	return snapshot
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Fatalf("expected construction to fail without dependencies")
	}
}

func TestJoinNoteCreatesSessionAndCountsCollaborators(t *testing.T) {
	fixture := newManagerFixture(t)

	snapshot := mustJoin(t, fixture, "note-1", "alice@example.com")
	if snapshot.Version != 1 {
		t.Fatalf("expected fresh session at version 1, got %d", snapshot.Version)
	}
	if snapshot.Title != "Plan" || snapshot.Content != "v1" {
		t.Fatalf("expected session seeded from the persisted note, got %q/%q", snapshot.Title, snapshot.Content)
	}
	if len(snapshot.Collaborators) != 1 {
		t.Fatalf("expected one collaborator, got %d", len(snapshot.Collaborators))
	}
	if snapshot.Collaborators[0].DisplayName != "Alice Adams" {
		t.Fatalf("expected directory display name, got %q", snapshot.Collaborators[0].DisplayName)
	}

	mustJoin(t, fixture, "note-1", "bob@example.com")
	if count := fixture.manager.GetCollaboratorCount("note-1"); count != 2 {
		t.Fatalf("expected 2 collaborators, got %d", count)
	}
}

func TestJoinNoteRejoinRefreshesLivenessOnly(t *testing.T) {
	fixture := newManagerFixture(t)

	first := mustJoin(t, fixture, "note-1", "alice@example.com")
	fixture.advance(time.Minute)
	second := mustJoin(t, fixture, "note-1", "alice@example.com")

	if len(second.Collaborators) != 1 {
		t.Fatalf("expected rejoin to keep a single collaborator entry")
	}
	before := first.Collaborators[0]
	after := second.Collaborators[0]
	if after.Color != before.Color {
		t.Fatalf("expected color to survive rejoin")
	}
	if !after.JoinedAt.Equal(before.JoinedAt) {
		t.Fatalf("expected join time to survive rejoin")
	}
	if !after.LastActiveAt.After(before.LastActiveAt) {
		t.Fatalf("expected rejoin to advance liveness")
	}
}

func TestJoinNoteErrorTaxonomy(t *testing.T) {
	fixture := newManagerFixture(t)
	fixture.authorizer.denied["org-2/user-alice"] = true

	tests := []struct {
		name     string
		noteID   string
		identity string
		sentinel error
	}{
		{name: "unknown-identity", noteID: "note-1", identity: "mallory@example.com", sentinel: ErrIdentityNotFound},
		{name: "unknown-note", noteID: "note-404", identity: "alice@example.com", sentinel: ErrNoteNotFound},
		{name: "denied-organization", noteID: "note-3", identity: "alice@example.com", sentinel: ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot, err := fixture.manager.JoinNote(context.Background(), tt.noteID, tt.identity)
			if snapshot != nil {
				t.Fatalf("expected no snapshot on failure")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			var serviceErr *ServiceError
			if !errors.As(err, &serviceErr) || serviceErr.Code() == "" {
				t.Fatalf("expected coded service error, got %v", err)
			}
		})
	}

	if fixture.manager.GetSession("note-3") != nil {
		t.Fatalf("denied join must not leave a session behind")
	}
}

func TestProcessEditSingleWinnerPerBaseVersion(t *testing.T) {
	fixture := newManagerFixture(t)
	mustJoin(t, fixture, "note-1", "alice@example.com")
	mustJoin(t, fixture, "note-1", "bob@example.com")

	winning := "v2"
	outcome, err := fixture.manager.ProcessEdit(context.Background(), EditRequest{
		NoteID:      "note-1",
		Kind:        EditKindContent,
		BaseVersion: 1,
		Content:     &winning,
	}, "alice@example.com")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if !outcome.Applied || outcome.Conflict || outcome.Version != 2 {
		t.Fatalf("expected winning edit at version 2, got %+v", outcome)
	}

	losing := "v2-bob"
	conflicted, err := fixture.manager.ProcessEdit(context.Background(), EditRequest{
		NoteID:      "note-1",
		Kind:        EditKindContent,
		BaseVersion: 1,
		Content:     &losing,
	}, "bob@example.com")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if conflicted.Applied || !conflicted.Conflict {
		t.Fatalf("expected stale edit to be rejected, got %+v", conflicted)
	}
	if conflicted.Version != 2 {
		t.Fatalf("expected conflict to report current version 2, got %d", conflicted.Version)
	}
	if conflicted.Content != nil {
		t.Fatalf("expected discarded content to be absent from the outcome")
	}

	snapshot := fixture.manager.GetSession("note-1")
	if snapshot == nil || snapshot.Content != "v2" || snapshot.Version != 2 {
		t.Fatalf("expected session to hold the winning content, got %+v", snapshot)
	}
}

func TestProcessEditAbsentSessionIsNoOp(t *testing.T) {
	fixture := newManagerFixture(t)

	content := "orphan"
	outcome, err := fixture.manager.ProcessEdit(context.Background(), EditRequest{
		NoteID:  "note-1",
		Kind:    EditKindContent,
		Content: &content,
	}, "alice@example.com")
	if err != nil {
		t.Fatalf("expected no error for absent session, got %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected nil outcome for absent session")
	}
}

func TestLeaveNoteDestroysEmptySession(t *testing.T) {
	fixture := newManagerFixture(t)
	mustJoin(t, fixture, "note-1", "alice@example.com")
	mustJoin(t, fixture, "note-1", "bob@example.com")

	event, err := fixture.manager.LeaveNote(context.Background(), "note-1", "alice@example.com")
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if event == nil || event.Type != PresenceUserLeft {
		t.Fatalf("expected USER_LEFT event, got %+v", event)
	}
	if event.RemainingCollaborators != 1 {
		t.Fatalf("expected one remaining collaborator, got %d", event.RemainingCollaborators)
	}
	if fixture.manager.GetSession("note-1") == nil {
		t.Fatalf("expected session to survive while a collaborator remains")
	}

	event, err = fixture.manager.LeaveNote(context.Background(), "note-1", "bob@example.com")
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if event.RemainingCollaborators != 0 {
		t.Fatalf("expected zero remaining collaborators, got %d", event.RemainingCollaborators)
	}
	if fixture.manager.GetSession("note-1") != nil {
		t.Fatalf("expected empty session to be destroyed")
	}
	if fixture.manager.GetCollaboratorCount("note-1") != 0 {
		t.Fatalf("expected zero count for destroyed session")
	}
}

func TestLeaveNoteAbsentStateIsNoOp(t *testing.T) {
	fixture := newManagerFixture(t)

	event, err := fixture.manager.LeaveNote(context.Background(), "note-1", "alice@example.com")
	if err != nil || event != nil {
		t.Fatalf("expected silent no-op for absent session, got %+v / %v", event, err)
	}

	mustJoin(t, fixture, "note-1", "alice@example.com")
	event, err = fixture.manager.LeaveNote(context.Background(), "note-1", "bob@example.com")
	if err != nil || event != nil {
		t.Fatalf("expected silent no-op for absent collaborator, got %+v / %v", event, err)
	}
}

func TestUpdateCursorRequiresMembership(t *testing.T) {
	fixture := newManagerFixture(t)
	mustJoin(t, fixture, "note-1", "alice@example.com")

	broadcast, err := fixture.manager.UpdateCursor(context.Background(), CursorRequest{
		NoteID:   "note-1",
		Position: 12,
	}, "bob@example.com")
	if err != nil || broadcast != nil {
		t.Fatalf("expected no broadcast for non-collaborator, got %+v / %v", broadcast, err)
	}

	selectionStart := 3
	selectionEnd := 9
	broadcast, err = fixture.manager.UpdateCursor(context.Background(), CursorRequest{
		NoteID:         "note-1",
		Position:       12,
		SelectionStart: &selectionStart,
		SelectionEnd:   &selectionEnd,
	}, "alice@example.com")
	if err != nil {
		t.Fatalf("cursor update failed: %v", err)
	}
	if broadcast == nil || broadcast.Cursor.Position != 12 {
		t.Fatalf("expected cursor broadcast, got %+v", broadcast)
	}
	if broadcast.Cursor.DisplayName != "Alice Adams" || broadcast.Cursor.Color == "" {
		t.Fatalf("expected denormalized display fields on cursor, got %+v", broadcast.Cursor)
	}

	snapshot := fixture.manager.GetSession("note-1")
	if len(snapshot.Cursors) != 1 {
		t.Fatalf("expected cursor to appear in the snapshot")
	}
}

func TestCreateTypingEvent(t *testing.T) {
	fixture := newManagerFixture(t)
	mustJoin(t, fixture, "note-1", "alice@example.com")

	event, err := fixture.manager.CreateTypingEvent(context.Background(), "note-1", "alice@example.com", true)
	if err != nil {
		t.Fatalf("typing event failed: %v", err)
	}
	if event == nil || event.Type != PresenceUserTyping {
		t.Fatalf("expected USER_TYPING event, got %+v", event)
	}

	event, err = fixture.manager.CreateTypingEvent(context.Background(), "note-1", "alice@example.com", false)
	if err != nil {
		t.Fatalf("typing event failed: %v", err)
	}
	if event == nil || event.Type != PresenceUserStoppedTyping {
		t.Fatalf("expected USER_STOPPED_TYPING event, got %+v", event)
	}

	event, err = fixture.manager.CreateTypingEvent(context.Background(), "note-1", "bob@example.com", true)
	if err != nil || event != nil {
		t.Fatalf("expected no typing event for non-collaborator, got %+v / %v", event, err)
	}
}

func TestHandleDisconnectSweepsEverySession(t *testing.T) {
	fixture := newManagerFixture(t)
	mustJoin(t, fixture, "note-1", "alice@example.com")
	mustJoin(t, fixture, "note-1", "bob@example.com")
	mustJoin(t, fixture, "note-2", "alice@example.com")
	mustJoin(t, fixture, "note-3", "carol@example.com")

	events, err := fixture.manager.HandleDisconnect(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected removal events for two sessions, got %d", len(events))
	}
	for _, event := range events {
		if event.Type != PresenceUserLeft || event.UserID != "user-alice" {
			t.Fatalf("unexpected disconnect event: %+v", event)
		}
	}

	if fixture.manager.GetCollaboratorCount("note-1") != 1 {
		t.Fatalf("expected bob to remain in note-1")
	}
	if fixture.manager.GetSession("note-2") != nil {
		t.Fatalf("expected emptied session note-2 to be destroyed")
	}
	if fixture.manager.GetCollaboratorCount("note-3") != 1 {
		t.Fatalf("expected note-3 to be untouched")
	}
}

func TestGetCollaboratorsListsJoinedUsers(t *testing.T) {
	fixture := newManagerFixture(t)

	if collaborators := fixture.manager.GetCollaborators("note-1"); len(collaborators) != 0 {
		t.Fatalf("expected empty list for absent session")
	}

	mustJoin(t, fixture, "note-1", "alice@example.com")
	fixture.advance(time.Second)
	mustJoin(t, fixture, "note-1", "bob@example.com")

	collaborators := fixture.manager.GetCollaborators("note-1")
	if len(collaborators) != 2 {
		t.Fatalf("expected two collaborators, got %d", len(collaborators))
	}
	if collaborators[0].UserID != "user-alice" || collaborators[1].UserID != "user-bob" {
		t.Fatalf("expected join-order listing, got %+v", collaborators)
	}
}
