package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates the email does not resolve to a directory
	// entry.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUser indicates a directory entry is missing required fields.
	ErrInvalidUser = errors.New("users: invalid user")
)

// ServiceConfig describes the dependencies of the identity directory.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service resolves identity tokens (emails) to directory entries. Resolved
// entries are cached for the process lifetime; directory attributes change
// rarely and sessions copy them at join time anyway.
type Service struct {
	db    *gorm.DB
	cache sync.Map
}

// NewService constructs the identity directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// FindByEmail resolves an email to its directory entry.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return User{}, fmt.Errorf("%w: empty email", ErrUserNotFound)
	}

	if cached, ok := s.cache.Load(normalized); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", normalized).
		First(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, normalized)
	}
	if err != nil {
		return User{}, err
	}

	s.cache.Store(normalized, user)
	return user, nil
}

// Create registers a directory entry. Used by provisioning flows and tests;
// the collaborative core only ever reads.
func (s *Service) Create(ctx context.Context, user User) (User, error) {
	user.Email = normalizeEmail(user.Email)
	if user.UserID == "" || user.Email == "" {
		return User{}, fmt.Errorf("%w: user id and email required", ErrInvalidUser)
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}
