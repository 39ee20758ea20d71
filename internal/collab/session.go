package collab

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Collaborator is one user currently joined to a session. Display fields are
// copied from the identity directory at join time and not refreshed
// afterwards; Color is assigned once and stays stable for the membership.
type Collaborator struct {
	UserID       string
	Email        string
	DisplayName  string
	AvatarURL    string
	Color        string
	JoinedAt     time.Time
	LastActiveAt time.Time
}

// CursorPosition is the ephemeral cursor/selection state for one
// collaborator, overwritten in place on every update. Color and DisplayName
// are denormalized so broadcasts need no directory lookup.
type CursorPosition struct {
	UserID         string
	Position       int
	SelectionStart *int
	SelectionEnd   *int
	Color          string
	DisplayName    string
	UpdatedAt      time.Time
}

// DisplayInfo carries the resolved identity attributes handed to Join.
type DisplayInfo struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
}

// EditResult reports the arbiter decision for a single edit.
type EditResult struct {
	Applied  bool
	Conflict bool
	Version  int64
}

// Session holds the shared in-memory state for one note under collaborative
// editing. All mutable fields are guarded by a single mutex; a session never
// outlives its last collaborator.
type Session struct {
	noteID         string
	organizationID string

	mu             sync.RWMutex
	title          string
	content        string
	version        int64
	collaborators  map[string]*Collaborator
	cursors        map[string]CursorPosition
	createdAt      time.Time
	lastModifiedAt time.Time
}

func newSession(noteID, organizationID, title, content string, now time.Time) *Session {
	return &Session{
		noteID:         noteID,
		organizationID: organizationID,
		title:          title,
		content:        content,
		version:        1,
		collaborators:  make(map[string]*Collaborator),
		cursors:        make(map[string]CursorPosition),
		createdAt:      now,
		lastModifiedAt: now,
	}
}

// NoteID returns the immutable identity key of the session.
func (s *Session) NoteID() string {
	return s.noteID
}

// OrganizationID returns the tenant the underlying note belongs to.
func (s *Session) OrganizationID() string {
	return s.organizationID
}

// Join adds the user as a collaborator. A user already present keeps their
// color and join time; only LastActiveAt is refreshed. A new joiner is
// assigned a color from the palette indexed by the live collaborator count.
func (s *Session) Join(info DisplayInfo, now time.Time) Collaborator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collaborators[info.UserID]; ok {
		existing.LastActiveAt = now
		return *existing
	}

	collaborator := &Collaborator{
		UserID:       info.UserID,
		Email:        info.Email,
		DisplayName:  info.DisplayName,
		AvatarURL:    info.AvatarURL,
		Color:        ColorFor(len(s.collaborators)),
		JoinedAt:     now,
		LastActiveAt: now,
	}
	s.collaborators[info.UserID] = collaborator
	return *collaborator
}

// Leave removes the user's collaborator entry and cursor. The second return
// reports whether the user was present.
func (s *Session) Leave(userID string) (Collaborator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collaborator, ok := s.collaborators[userID]
	if !ok {
		return Collaborator{}, false
	}
	delete(s.collaborators, userID)
	delete(s.cursors, userID)
	return *collaborator, true
}

// Touch refreshes the user's liveness timestamp. No-op when absent.
func (s *Session) Touch(userID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	collaborator, ok := s.collaborators[userID]
	if !ok {
		return false
	}
	collaborator.LastActiveAt = now
	return true
}

// Count returns the live collaborator count.
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collaborators)
}

// HasCollaborator reports whether the user is currently joined.
func (s *Session) HasCollaborator(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collaborators[userID]
	return ok
}

// SetCursor overwrites the user's cursor state and refreshes their liveness.
// Returns false when the user is not a collaborator.
func (s *Session) SetCursor(userID string, position int, selectionStart, selectionEnd *int, now time.Time) (CursorPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collaborator, ok := s.collaborators[userID]
	if !ok {
		return CursorPosition{}, false
	}
	collaborator.LastActiveAt = now

	cursor := CursorPosition{
		UserID:         userID,
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
		Color:          collaborator.Color,
		DisplayName:    collaborator.DisplayName,
		UpdatedAt:      now,
	}
	s.cursors[userID] = cursor
	return cursor, true
}

// ApplyEdit arbitrates one edit against the session version. A reported base
// version older than the current version is a conflict: the proposed fields
// are discarded and the current version returned unchanged. Otherwise the
// named fields are overwritten wholesale and the version advances by one.
// The read-compare-write runs under the session mutex, so two edits with the
// same base version produce exactly one winner.
func (s *Session) ApplyEdit(kind EditKind, baseVersion int64, title, content *string, now time.Time) EditResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if baseVersion > 0 && baseVersion < s.version {
		return EditResult{Applied: false, Conflict: true, Version: s.version}
	}

	switch kind {
	case EditKindTitle:
		if title != nil {
			s.title = *title
		}
	case EditKindContent:
		if content != nil {
			s.content = *content
		}
	case EditKindFull:
		if title != nil {
			s.title = *title
		}
		if content != nil {
			s.content = *content
		}
	}

	s.version++
	s.lastModifiedAt = now
	return EditResult{Applied: true, Conflict: false, Version: s.version}
}

// Version returns the current edit generation.
func (s *Session) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot copies the full session state. Collaborators are ordered by join
// time, cursors by user id.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionSnapshot{
		NoteID:         s.noteID,
		OrganizationID: s.organizationID,
		Title:          s.title,
		Content:        s.content,
		Version:        s.version,
		Collaborators:  s.collaboratorListLocked(),
		Cursors:        s.cursorListLocked(),
		CreatedAt:      s.createdAt,
		LastModifiedAt: s.lastModifiedAt,
	}
}

// Collaborators returns the live collaborators ordered by join time.
func (s *Session) Collaborators() []Collaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collaboratorListLocked()
}

// Cursors returns the live cursor positions ordered by user id.
func (s *Session) Cursors() []CursorPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorListLocked()
}

func (s *Session) collaboratorListLocked() []Collaborator {
	list := make([]Collaborator, 0, len(s.collaborators))
	for _, collaborator := range s.collaborators {
		list = append(list, *collaborator)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return strings.Compare(list[i].UserID, list[j].UserID) < 0
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

func (s *Session) cursorListLocked() []CursorPosition {
	list := make([]CursorPosition, 0, len(s.cursors))
	for _, cursor := range s.cursors {
		list = append(list, cursor)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UserID < list[j].UserID
	})
	return list
}
