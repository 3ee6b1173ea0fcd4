package repos

import (
	"gorm.io/gorm"

	"github.com/partforge/partforge-backend/internal/data/repos/bom"
	"github.com/partforge/partforge-backend/internal/data/repos/docs"
	"github.com/partforge/partforge-backend/internal/data/repos/jobs"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type PartRepo = bom.PartRepo
type ParentChildLinkRepo = bom.ParentChildLinkRepo
type LocationExtensionRepo = bom.LocationExtensionRepo

type DocumentRepo = docs.DocumentRepo
type DocumentFileRepo = docs.DocumentFileRepo

type DecompositionRunRepo = jobs.DecompositionRunRepo
type DecompositionActionRepo = jobs.DecompositionActionRepo

// Bundle groups every repository over one database handle.
type Bundle struct {
	Parts      PartRepo
	Links      ParentChildLinkRepo
	Extensions LocationExtensionRepo

	Documents     DocumentRepo
	DocumentFiles DocumentFileRepo

	Runs    DecompositionRunRepo
	Actions DecompositionActionRepo
}

func NewBundle(db *gorm.DB, baseLog *logger.Logger) *Bundle {
	return &Bundle{
		Parts:      bom.NewPartRepo(db, baseLog),
		Links:      bom.NewParentChildLinkRepo(db, baseLog),
		Extensions: bom.NewLocationExtensionRepo(db, baseLog),

		Documents:     docs.NewDocumentRepo(db, baseLog),
		DocumentFiles: docs.NewDocumentFileRepo(db, baseLog),

		Runs:    jobs.NewDecompositionRunRepo(db, baseLog),
		Actions: jobs.NewDecompositionActionRepo(db, baseLog),
	}
}
