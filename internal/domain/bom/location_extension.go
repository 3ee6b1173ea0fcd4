package bom

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LocationExtension holds one occurrence of a link's child: its placement and
// occurrence name. An active link always owns exactly Quantity extension rows.
// Extensions are created alongside their link and never individually mutated;
// a quantity change ends the old link and creates a new one with fresh rows.
type LocationExtension struct {
	ID     uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LinkID uuid.UUID        `gorm:"type:uuid;not null;index:idx_extension_link" json:"link_id"`
	Link   *ParentChildLink `gorm:"constraint:OnDelete:CASCADE;foreignKey:LinkID;references:ID" json:"link,omitempty"`

	// Rank preserves encounter order of occurrences within the link.
	Rank int    `gorm:"column:rank;not null" json:"rank"`
	Name string `gorm:"column:name;not null" json:"name"`

	// Transform is a JSON array of 12 floats: a row-major 3x4 affine matrix,
	// last row implicitly 0 0 0 1.
	Transform datatypes.JSON `gorm:"column:transform;type:jsonb;not null" json:"transform"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (LocationExtension) TableName() string { return "location_extension" }
