package assembly

import (
	"github.com/google/uuid"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
)

// DocumentStore is the engine's view of the document vault. The builder and
// synchronizer create documents and check files in through it; binary storage
// mechanics live behind the interface.
type DocumentStore interface {
	// CreateComponentDocument creates the decomposition document of one new
	// component.
	CreateComponentDocument(dbc dbctx.Context, name string) (*types.Document, error)

	// CreateFile stores content as a brand-new DocumentFile at revision 1.
	CreateFile(dbc dbctx.Context, documentID uuid.UUID, kind, filename string, content []byte) (*types.DocumentFile, error)

	// CreateFileFrom attaches a copy of an existing file's current content to
	// another document, at revision 1.
	CreateFileFrom(dbc dbctx.Context, documentID uuid.UUID, sourceFileID uuid.UUID) (*types.DocumentFile, error)

	// Checkin submits new content for an existing file, advancing its
	// revision by exactly 1.
	Checkin(dbc dbctx.Context, fileID uuid.UUID, content []byte) (*types.DocumentFile, error)

	// CheckinCurrent re-checks-in the file's current content unchanged. A
	// synchronization pass is itself a check-in event, so the revision still
	// advances.
	CheckinCurrent(dbc dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error)
}
