package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrIdentityNotFound indicates the identity token did not resolve to a
	// known user.
	ErrIdentityNotFound = errors.New("collab: identity not found")
	// ErrNoteNotFound indicates no persisted note and no live session exist
	// for the requested note id.
	ErrNoteNotFound = errors.New("collab: note not found")
	// ErrAccessDenied indicates the resolved user lacks access to the note's
	// organization.
	ErrAccessDenied = errors.New("collab: access denied")

	errMissingDirectory  = errors.New("identity directory is required")
	errMissingNoteStore  = errors.New("note store is required")
	errMissingAuthorizer = errors.New("authorizer is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opManagerNew   = "collab.manager.new"
	opJoinNote     = "collab.join_note"
	opLeaveNote    = "collab.leave_note"
	opProcessEdit  = "collab.process_edit"
	opUpdateCursor = "collab.update_cursor"
	opTypingEvent  = "collab.typing_event"
	opDisconnect   = "collab.handle_disconnect"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Profile describes the display attributes resolved for an identity token.
type Profile struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	AvatarURL string
}

// NoteRecord is the persisted note state used to seed a new session.
type NoteRecord struct {
	NoteID         string
	OrganizationID string
	Title          string
	Content        string
}

// Directory resolves an identity token (an email) to display attributes.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (Profile, error)
}

// NoteStore loads persisted notes; consulted only when no session exists yet.
type NoteStore interface {
	FindByID(ctx context.Context, noteID string) (NoteRecord, error)
}

// Authorizer checks whether a user may access an organization's notes.
type Authorizer interface {
	CheckAccess(ctx context.Context, organizationID, userID string) error
}

// ManagerConfig describes the dependencies of the session manager.
type ManagerConfig struct {
	Sessions   *Store
	Directory  Directory
	Notes      NoteStore
	Authorizer Authorizer
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Manager is the public surface of the collaborative editing core: join,
// leave, edit, cursor, typing, disconnect sweep, and snapshot queries.
type Manager struct {
	sessions   *Store
	directory  Directory
	notes      NoteStore
	authorizer Authorizer
	clock      func() time.Time
	logger     *zap.Logger
}

// NewManager constructs the session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Directory == nil {
		return nil, newServiceError(opManagerNew, "missing_directory", errMissingDirectory)
	}
	if cfg.Notes == nil {
		return nil, newServiceError(opManagerNew, "missing_note_store", errMissingNoteStore)
	}
	if cfg.Authorizer == nil {
		return nil, newServiceError(opManagerNew, "missing_authorizer", errMissingAuthorizer)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewStore(clock)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Manager{
		sessions:   sessions,
		directory:  cfg.Directory,
		notes:      cfg.Notes,
		authorizer: cfg.Authorizer,
		clock:      clock,
		logger:     logger,
	}, nil
}

// JoinNote resolves the identity, authorizes it against the note's
// organization, creates the session on first join (seeded from the persisted
// note) and adds the user as a collaborator. Returns the full session
// snapshot.
func (m *Manager) JoinNote(ctx context.Context, noteID, identity string) (*SessionSnapshot, error) {
	profile, err := m.resolveIdentity(ctx, opJoinNote, identity)
	if err != nil {
		return nil, err
	}

	session, exists := m.sessions.Get(noteID)
	var record NoteRecord
	if exists {
		record.OrganizationID = session.OrganizationID()
	} else {
		record, err = m.notes.FindByID(ctx, noteID)
		if err != nil {
			m.logError(opJoinNote, "note_not_found", err, zap.String("note_id", noteID))
			return nil, newServiceError(opJoinNote, "note_not_found", fmt.Errorf("%w: %v", ErrNoteNotFound, err))
		}
	}

	if err := m.authorizer.CheckAccess(ctx, record.OrganizationID, profile.UserID); err != nil {
		m.logError(opJoinNote, "access_denied", err,
			zap.String("note_id", noteID),
			zap.String("user_id", profile.UserID))
		return nil, newServiceError(opJoinNote, "access_denied", fmt.Errorf("%w: %v", ErrAccessDenied, err))
	}

	if !exists {
		session = m.sessions.GetOrCreate(noteID, record.OrganizationID, record.Title, record.Content)
	}
	session.Join(displayInfo(profile), m.clock().UTC())

	snapshot := session.Snapshot()
	return &snapshot, nil
}

// LeaveNote removes the user from the session and destroys the session when
// it empties. A missing session or absent collaborator is a nil result, not
// an error.
func (m *Manager) LeaveNote(ctx context.Context, noteID, identity string) (*PresenceEvent, error) {
	profile, err := m.resolveIdentity(ctx, opLeaveNote, identity)
	if err != nil {
		return nil, err
	}

	session, ok := m.sessions.Get(noteID)
	if !ok {
		m.logger.Debug("leave for absent session", zap.String("note_id", noteID))
		return nil, nil
	}

	collaborator, removed := session.Leave(profile.UserID)
	if !removed {
		m.logger.Debug("leave for absent collaborator",
			zap.String("note_id", noteID),
			zap.String("user_id", profile.UserID))
		return nil, nil
	}

	remaining := session.Count()
	if remaining == 0 {
		m.sessions.Remove(noteID)
	}

	return &PresenceEvent{
		Type:                   PresenceUserLeft,
		NoteID:                 noteID,
		UserID:                 collaborator.UserID,
		DisplayName:            collaborator.DisplayName,
		Color:                  collaborator.Color,
		RemainingCollaborators: remaining,
		Timestamp:              m.clock().UTC(),
	}, nil
}

// ProcessEdit refreshes the editor's presence and arbitrates the edit against
// the session version. A missing session is a nil result; a stale base
// version is a normal conflict outcome, never an error.
func (m *Manager) ProcessEdit(ctx context.Context, request EditRequest, identity string) (*EditOutcome, error) {
	profile, err := m.resolveIdentity(ctx, opProcessEdit, identity)
	if err != nil {
		return nil, err
	}

	session, ok := m.sessions.Get(request.NoteID)
	if !ok {
		m.logger.Debug("edit for absent session", zap.String("note_id", request.NoteID))
		return nil, nil
	}

	now := m.clock().UTC()
	session.Touch(profile.UserID, now)
	result := session.ApplyEdit(request.Kind, request.BaseVersion, request.Title, request.Content, now)

	outcome := &EditOutcome{
		NoteID:   request.NoteID,
		UserID:   profile.UserID,
		Kind:     request.Kind,
		Applied:  result.Applied,
		Conflict: result.Conflict,
		Version:  result.Version,
	}
	if result.Applied {
		outcome.Title = request.Title
		outcome.Content = request.Content
	}
	return outcome, nil
}

// UpdateCursor overwrites the user's cursor state. A missing session or a
// non-collaborator is a nil result.
func (m *Manager) UpdateCursor(ctx context.Context, request CursorRequest, identity string) (*CursorBroadcast, error) {
	profile, err := m.resolveIdentity(ctx, opUpdateCursor, identity)
	if err != nil {
		return nil, err
	}

	session, ok := m.sessions.Get(request.NoteID)
	if !ok {
		m.logger.Debug("cursor update for absent session", zap.String("note_id", request.NoteID))
		return nil, nil
	}

	cursor, ok := session.SetCursor(profile.UserID, request.Position, request.SelectionStart, request.SelectionEnd, m.clock().UTC())
	if !ok {
		m.logger.Debug("cursor update for absent collaborator",
			zap.String("note_id", request.NoteID),
			zap.String("user_id", profile.UserID))
		return nil, nil
	}

	return &CursorBroadcast{NoteID: request.NoteID, Cursor: cursor}, nil
}

// CreateTypingEvent builds a typing presence event without mutating session
// state. A missing session or a non-collaborator is a nil result.
func (m *Manager) CreateTypingEvent(ctx context.Context, noteID, identity string, isTyping bool) (*PresenceEvent, error) {
	profile, err := m.resolveIdentity(ctx, opTypingEvent, identity)
	if err != nil {
		return nil, err
	}

	session, ok := m.sessions.Get(noteID)
	if !ok || !session.HasCollaborator(profile.UserID) {
		m.logger.Debug("typing event without active membership",
			zap.String("note_id", noteID),
			zap.String("user_id", profile.UserID))
		return nil, nil
	}

	eventType := PresenceUserStoppedTyping
	if isTyping {
		eventType = PresenceUserTyping
	}
	return &PresenceEvent{
		Type:                   eventType,
		NoteID:                 noteID,
		UserID:                 profile.UserID,
		DisplayName:            displayName(profile),
		RemainingCollaborators: session.Count(),
		Timestamp:              m.clock().UTC(),
	}, nil
}

// GetSession returns a snapshot of the live session, or nil when absent.
func (m *Manager) GetSession(noteID string) *SessionSnapshot {
	session, ok := m.sessions.Get(noteID)
	if !ok {
		return nil
	}
	snapshot := session.Snapshot()
	return &snapshot
}

// GetCollaborators lists the live collaborators of a session, empty when the
// session is absent.
func (m *Manager) GetCollaborators(noteID string) []Collaborator {
	session, ok := m.sessions.Get(noteID)
	if !ok {
		return nil
	}
	return session.Collaborators()
}

// GetCollaboratorCount returns the live collaborator count, zero when absent.
func (m *Manager) GetCollaboratorCount(noteID string) int {
	session, ok := m.sessions.Get(noteID)
	if !ok {
		return 0
	}
	return session.Count()
}

// HandleDisconnect sweeps every live session, removes the user wherever
// present and destroys sessions left empty. Transport disconnects are not
// scoped to a single note, so this is the one O(sessions) operation. Returns
// one USER_LEFT event per session the user was removed from.
func (m *Manager) HandleDisconnect(ctx context.Context, identity string) ([]PresenceEvent, error) {
	profile, err := m.resolveIdentity(ctx, opDisconnect, identity)
	if err != nil {
		return nil, err
	}

	now := m.clock().UTC()
	var events []PresenceEvent
	var emptied []string
	m.sessions.ForEach(func(session *Session) {
		collaborator, removed := session.Leave(profile.UserID)
		if !removed {
			return
		}
		remaining := session.Count()
		if remaining == 0 {
			emptied = append(emptied, session.NoteID())
		}
		events = append(events, PresenceEvent{
			Type:                   PresenceUserLeft,
			NoteID:                 session.NoteID(),
			UserID:                 collaborator.UserID,
			DisplayName:            collaborator.DisplayName,
			Color:                  collaborator.Color,
			RemainingCollaborators: remaining,
			Timestamp:              now,
		})
	})
	for _, noteID := range emptied {
		m.sessions.Remove(noteID)
	}

	if len(events) > 0 {
		m.logger.Info("disconnect sweep removed collaborator",
			zap.String("user_id", profile.UserID),
			zap.Int("sessions", len(events)))
	}
	return events, nil
}

func (m *Manager) resolveIdentity(ctx context.Context, operation, identity string) (Profile, error) {
	profile, err := m.directory.FindByEmail(ctx, identity)
	if err != nil {
		m.logError(operation, "identity_not_found", err, zap.String("identity", identity))
		return Profile{}, newServiceError(operation, "identity_not_found", fmt.Errorf("%w: %v", ErrIdentityNotFound, err))
	}
	return profile, nil
}

func displayInfo(profile Profile) DisplayInfo {
	return DisplayInfo{
		UserID:      profile.UserID,
		Email:       profile.Email,
		DisplayName: displayName(profile),
		AvatarURL:   profile.AvatarURL,
	}
}

func displayName(profile Profile) string {
	name := strings.TrimSpace(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName))
	if name == "" {
		return profile.Email
	}
	return name
}

func (m *Manager) loggerOrDefault() *zap.Logger {
	if m == nil || m.logger == nil {
		return noOpLogger
	}
	return m.logger
}

func (m *Manager) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	m.loggerOrDefault().Error("collab manager error", attrs...)
}
