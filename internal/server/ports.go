package server

import (
	"context"

	"github.com/tandemhq/tandem/backend/internal/collab"
	"github.com/tandemhq/tandem/backend/internal/notes"
	"github.com/tandemhq/tandem/backend/internal/organizations"
	"github.com/tandemhq/tandem/backend/internal/users"
)

// DirectoryAdapter exposes the user directory as the session manager's
// identity port.
type DirectoryAdapter struct {
	Users *users.Service
}

func (a DirectoryAdapter) FindByEmail(ctx context.Context, email string) (collab.Profile, error) {
	user, err := a.Users.FindByEmail(ctx, email)
	if err != nil {
		return collab.Profile{}, err
	}
	return collab.Profile{
		UserID:    user.UserID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		AvatarURL: user.AvatarURL,
	}, nil
}

// NoteStoreAdapter exposes the persisted note store as the session manager's
// seed port.
type NoteStoreAdapter struct {
	Notes *notes.Service
}

func (a NoteStoreAdapter) FindByID(ctx context.Context, noteID string) (collab.NoteRecord, error) {
	note, err := a.Notes.FindByID(ctx, noteID)
	if err != nil {
		return collab.NoteRecord{}, err
	}
	return collab.NoteRecord{
		NoteID:         note.NoteID,
		OrganizationID: note.OrganizationID,
		Title:          note.Title,
		Content:        note.Content,
	}, nil
}

// AuthorizerAdapter exposes organization memberships as the session
// manager's access-check port.
type AuthorizerAdapter struct {
	Memberships *organizations.Service
}

func (a AuthorizerAdapter) CheckAccess(ctx context.Context, organizationID, userID string) error {
	return a.Memberships.CheckAccess(ctx, organizationID, userID)
}
