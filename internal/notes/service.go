package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoteNotFound indicates no persisted note exists for the id.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrInvalidNote indicates a note is missing required fields.
	ErrInvalidNote = errors.New("notes: invalid note")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the note store.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues identifiers for newly created notes.
type IDProvider interface {
	NewID() (string, error)
}

// Service is the persisted note store.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the note store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// FindByID loads a persisted note.
func (s *Service) FindByID(ctx context.Context, noteID string) (Note, error) {
	trimmed := strings.TrimSpace(noteID)
	if trimmed == "" {
		return Note{}, fmt.Errorf("%w: empty id", ErrNoteNotFound)
	}

	var note Note
	err := s.db.WithContext(ctx).
		Where("note_id = ?", trimmed).
		First(&note).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, trimmed)
	}
	if err != nil {
		s.logger.Error("note lookup failed", zap.String("note_id", trimmed), zap.Error(err))
		return Note{}, err
	}
	return note, nil
}

// CreateRequest describes a note to persist.
type CreateRequest struct {
	OrganizationID string
	Title          string
	Content        string
}

// Create persists a new note with a generated identifier.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Note, error) {
	if strings.TrimSpace(request.OrganizationID) == "" {
		return Note{}, fmt.Errorf("%w: organization required", ErrInvalidNote)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logger.Error("note id generation failed", zap.Error(err))
		return Note{}, err
	}

	note := Note{
		NoteID:         noteID,
		OrganizationID: request.OrganizationID,
		Title:          request.Title,
		Content:        request.Content,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logger.Error("note insert failed", zap.String("note_id", noteID), zap.Error(err))
		return Note{}, err
	}
	return note, nil
}
