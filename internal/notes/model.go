package notes

import "time"

// Note is the persisted document record. The collaborative session layer
// reads it once to seed a new session; the live title/content then belong to
// the session for its lifetime.
type Note struct {
	NoteID         string    `gorm:"column:note_id;primaryKey;size:190;not null"`
	OrganizationID string    `gorm:"column:organization_id;size:190;not null;index"`
	Title          string    `gorm:"column:title;type:text;not null"`
	Content        string    `gorm:"column:content;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
