package collab

import "time"

// EditKind enumerates the supported edit operations.
type EditKind string

const (
	// EditKindTitle replaces only the session title.
	EditKindTitle EditKind = "TITLE_UPDATE"
	// EditKindContent replaces only the session content.
	EditKindContent EditKind = "CONTENT_UPDATE"
	// EditKindFull replaces whichever of title/content the request carries.
	EditKindFull EditKind = "FULL_UPDATE"
)

// PresenceEventType enumerates broadcast-worthy presence transitions.
type PresenceEventType string

const (
	PresenceUserJoined        PresenceEventType = "USER_JOINED"
	PresenceUserLeft          PresenceEventType = "USER_LEFT"
	PresenceUserTyping        PresenceEventType = "USER_TYPING"
	PresenceUserStoppedTyping PresenceEventType = "USER_STOPPED_TYPING"
)

// PresenceEvent describes a presence transition for fan-out to the remaining
// collaborators of a note.
type PresenceEvent struct {
	Type                   PresenceEventType
	NoteID                 string
	UserID                 string
	DisplayName            string
	Color                  string
	RemainingCollaborators int
	Timestamp              time.Time
}

// EditRequest carries one proposed edit against a live session. A zero
// BaseVersion means the client did not report one and the conflict check is
// skipped.
type EditRequest struct {
	NoteID      string
	Kind        EditKind
	BaseVersion int64
	Title       *string
	Content     *string
}

// EditOutcome reports what the arbiter did with an edit. Conflict is an
// expected result, never an error: the proposed fields were discarded and
// Version holds the version the client must catch up to.
type EditOutcome struct {
	NoteID   string
	UserID   string
	Kind     EditKind
	Applied  bool
	Conflict bool
	Version  int64
	Title    *string
	Content  *string
}

// CursorRequest carries one cursor/selection update.
type CursorRequest struct {
	NoteID         string
	Position       int
	SelectionStart *int
	SelectionEnd   *int
}

// CursorBroadcast is the fan-out payload for a cursor update.
type CursorBroadcast struct {
	NoteID string
	Cursor CursorPosition
}

// SessionSnapshot is a point-in-time copy of a session's shared state.
type SessionSnapshot struct {
	NoteID         string
	OrganizationID string
	Title          string
	Content        string
	Version        int64
	Collaborators  []Collaborator
	Cursors        []CursorPosition
	CreatedAt      time.Time
	LastModifiedAt time.Time
}
