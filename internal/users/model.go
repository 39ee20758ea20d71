package users

import (
	"strings"
	"time"
)

// User is the persisted directory entry for one account. Display attributes
// are copied into collaborative sessions at join time and not refreshed.
type User struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email     string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	FirstName string    `gorm:"column:first_name;size:190"`
	LastName  string    `gorm:"column:last_name;size:190"`
	AvatarURL string    `gorm:"column:avatar_url;size:512"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing directory entries.
func (User) TableName() string {
	return "users"
}

// normalizeEmail lowercases and trims an identity token before lookups.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
