package model

import (
	"time"

	"github.com/google/uuid"
)

// Access modes for a document. ShareMode is the default granted to every
// collaborator unless a per-user DocumentShare overrides it.
const (
	ModeEdit = "edit"
	ModeView = "view"
)

type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Title     string    `gorm:"not null"`
	Content   string    `gorm:"type:text"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ShareMode string    `gorm:"not null;default:'view';check:share_mode IN ('edit', 'view')"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Owner User `gorm:"foreignKey:OwnerID"`
}
