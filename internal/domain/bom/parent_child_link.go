package bom

import (
	"time"

	"github.com/google/uuid"
)

// ParentChildLink is a time-ranged Part->Part edge. A link is never mutated in
// place: ending a link sets EndTime, and any replacement is a brand-new row.
// EndTime == nil means the link is currently active.
type ParentChildLink struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ParentID uuid.UUID `gorm:"type:uuid;not null;index:idx_link_parent" json:"parent_id"`
	Parent   *Part     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ParentID;references:ID" json:"parent,omitempty"`
	ChildID  uuid.UUID `gorm:"type:uuid;not null;index:idx_link_child" json:"child_id"`
	Child    *Part     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChildID;references:ID" json:"child,omitempty"`

	// Order is a positive multiple of 10, strictly increasing among a parent's
	// distinct active children in first-encounter traversal order.
	Order    int    `gorm:"column:child_order;not null" json:"order"`
	Quantity int    `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Unit     string `gorm:"column:unit;not null;default:'-'" json:"unit"`

	StartTime time.Time  `gorm:"column:start_time;not null;default:now()" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time;index" json:"end_time,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ParentChildLink) TableName() string { return "parent_child_link" }

func (l *ParentChildLink) Active() bool { return l != nil && l.EndTime == nil }
