package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DecompositionRun is the audit row for one transaction-envelope pass over a
// root file. Its actions journal every side effect that outlives the database
// transaction (vault objects written during the attempt) so a failed pass can
// be compensated.
type DecompositionRun struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RootPartID uuid.UUID `gorm:"type:uuid;not null;index" json:"root_part_id"`
	RootFileID uuid.UUID `gorm:"type:uuid;not null;index" json:"root_file_id"`
	Actor      string    `gorm:"column:actor;not null" json:"actor"`

	Status string `gorm:"column:status;not null" json:"status"`
	Error  string `gorm:"column:error" json:"error"`

	// Graph delta recorded on success, for the re-indexing job.
	Delta datatypes.JSON `gorm:"column:delta;type:jsonb" json:"delta"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DecompositionRun) TableName() string { return "decomposition_run" }

// DecompositionAction is one journaled compensation step of a run.
type DecompositionAction struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`

	Seq     int            `gorm:"column:seq;not null" json:"seq"`
	Kind    string         `gorm:"column:kind;not null" json:"kind"`
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Status  string         `gorm:"column:status;not null" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DecompositionAction) TableName() string { return "decomposition_action" }
