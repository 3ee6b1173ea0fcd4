package bom

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Part is a node of the persistent BOM graph. Its identity is stable across
// synchronization passes: removal from a tree only ends links, never deletes rows.
type Part struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Reference string    `gorm:"column:reference;not null;uniqueIndex:idx_part_identity" json:"reference"`
	Type      string    `gorm:"column:type;not null;default:'Part';uniqueIndex:idx_part_identity" json:"type"`
	Revision  string    `gorm:"column:revision;not null;default:'a';uniqueIndex:idx_part_identity" json:"revision"`
	Name      string    `gorm:"column:name;not null" json:"name"`

	// Set once the part has been decomposed into children; undecomposed parts
	// carry no decomposition document.
	DecompositionDocumentID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"decomposition_document_id,omitempty"`

	LastModifiedAt time.Time `gorm:"column:last_modified_at;not null;default:now()" json:"last_modified_at"`
	LastModifiedBy string    `gorm:"column:last_modified_by" json:"last_modified_by"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Part) TableName() string { return "part" }
