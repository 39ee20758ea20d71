package organizations

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrAccessDenied indicates the user holds no membership in the
	// organization.
	ErrAccessDenied = errors.New("organizations: access denied")
	// ErrInvalidMembership indicates a membership row is missing identifiers.
	ErrInvalidMembership = errors.New("organizations: invalid membership")
)

// ServiceConfig describes the dependencies of the membership service.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service answers organization access checks from the membership table.
type Service struct {
	db *gorm.DB
}

// NewService constructs the membership service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("organizations: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// CheckAccess returns nil when the user belongs to the organization and
// ErrAccessDenied otherwise.
func (s *Service) CheckAccess(ctx context.Context, organizationID, userID string) error {
	if organizationID == "" || userID == "" {
		return fmt.Errorf("%w: organization and user required", ErrAccessDenied)
	}

	var membership Membership
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", organizationID, userID).
		First(&membership).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s in %s", ErrAccessDenied, userID, organizationID)
	}
	return err
}

// AddMember records a membership. Used by provisioning flows and tests.
func (s *Service) AddMember(ctx context.Context, membership Membership) error {
	if membership.OrganizationID == "" || membership.UserID == "" {
		return fmt.Errorf("%w: organization and user required", ErrInvalidMembership)
	}
	if membership.Role == "" {
		membership.Role = "member"
	}
	return s.db.WithContext(ctx).Create(&membership).Error
}
