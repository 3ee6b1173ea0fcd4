package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FileKindNative = "native"
	FileKindStep   = "step"
)

// DocumentFile is one stored file of a Document. Revision starts at 1 and
// advances by exactly 1 per accepted check-in; it never decreases. The lock is
// a persisted record (flag + owning locker identity), not a process mutex, so
// it survives restarts and is visible to distributed workers.
type DocumentFile struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_document_file_document" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Filename string `gorm:"column:filename;not null" json:"filename"`
	Kind     string `gorm:"column:kind;not null" json:"kind"`
	Size     int64  `gorm:"column:size" json:"size"`

	// Vault object key of the current revision's content.
	StorageKey string `gorm:"column:storage_key;not null" json:"storage_key"`
	Revision   int    `gorm:"column:revision;not null;default:1" json:"revision"`

	Locked bool   `gorm:"column:locked;not null;default:false" json:"locked"`
	Locker string `gorm:"column:locker" json:"locker"`

	// A native file is deprecated while its step twin drives a decomposition.
	Deprecated bool `gorm:"column:deprecated;not null;default:false" json:"deprecated"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentFile) TableName() string { return "document_file" }
