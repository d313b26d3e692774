package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentShare is the per-user access grant for a shared document. Mode
// overrides the document's default ShareMode for that user. Revoked marks a
// grant that was explicitly downgraded by the owner; it stays view-only until
// a fresh share resets it.
type DocumentShare struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_doc_user,unique"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_doc_user,unique"`
	Mode       string    `gorm:"not null;check:mode IN ('edit', 'view')"`
	Revoked    bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time

	Document Document `gorm:"foreignKey:DocumentID"`
	User     User     `gorm:"foreignKey:UserID"`
}
