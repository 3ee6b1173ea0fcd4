package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document owns one or many DocumentFiles (native and step variants of the
// same component).
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Reference string    `gorm:"column:reference;not null;uniqueIndex:idx_document_identity" json:"reference"`
	Type      string    `gorm:"column:type;not null;default:'Document3D';uniqueIndex:idx_document_identity" json:"type"`
	Revision  string    `gorm:"column:revision;not null;default:'a';uniqueIndex:idx_document_identity" json:"revision"`
	Name      string    `gorm:"column:name;not null" json:"name"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
