package organizations

import "time"

// Membership links a user to an organization. Presence of a row is what
// grants access to the organization's notes.
type Membership struct {
	OrganizationID string    `gorm:"column:organization_id;primaryKey;size:190;not null"`
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Role           string    `gorm:"column:role;size:32;not null;default:'member'"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing organization memberships.
func (Membership) TableName() string {
	return "organization_memberships"
}
