package services

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/modules/assembly"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/gcp"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

// VaultJournal records a compensation step for a vault object written during a
// pass. It must persist outside the pass's transaction so orphaned objects can
// be deleted after a rollback.
type VaultJournal func(dbc dbctx.Context, kind string, payload map[string]any) error

const JournalKindVaultDeleteKey = "vault_delete_key"

// DocumentStoreService owns Document and DocumentFile persistence plus the
// binary content in the vault bucket. It implements assembly.DocumentStore.
type DocumentStoreService struct {
	db        *gorm.DB
	log       *logger.Logger
	documents repos.DocumentRepo
	files     repos.DocumentFileRepo
	bucket    gcp.BucketService

	journal VaultJournal
}

func NewDocumentStoreService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	files repos.DocumentFileRepo,
	bucket gcp.BucketService,
) *DocumentStoreService {
	return &DocumentStoreService{
		db:        db,
		log:       baseLog.With("service", "DocumentStoreService"),
		documents: documents,
		files:     files,
		bucket:    bucket,
	}
}

// Bound returns a view of the store that journals every written vault key.
func (s *DocumentStoreService) Bound(journal VaultJournal) *DocumentStoreService {
	bound := *s
	bound.journal = journal
	return &bound
}

var _ assembly.DocumentStore = (*DocumentStoreService)(nil)

func (s *DocumentStoreService) CreateComponentDocument(dbc dbctx.Context, name string) (*types.Document, error) {
	doc := &types.Document{
		ID:        uuid.New(),
		Reference: documentReference(),
		Type:      "Document3D",
		Revision:  "a",
		Name:      name,
	}

	exists, err := s.documents.ExistsByIdentity(dbc, doc.Reference, doc.Type, doc.Revision)
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "check document identity", Err: err}
	}
	if exists {
		return nil, &assembly.AmbiguousIdentityError{
			ComponentName: name,
			Reason:        fmt.Sprintf("document %s/%s/%s already exists", doc.Reference, doc.Type, doc.Revision),
		}
	}

	if _, err := s.documents.Create(dbc, []*types.Document{doc}); err != nil {
		return nil, &assembly.PersistenceError{Op: "create document", Err: err}
	}
	return doc, nil
}

func (s *DocumentStoreService) CreateFile(dbc dbctx.Context, documentID uuid.UUID, kind, filename string, content []byte) (*types.DocumentFile, error) {
	file := &types.DocumentFile{
		ID:         uuid.New(),
		DocumentID: documentID,
		Filename:   filename,
		Kind:       kind,
		Size:       int64(len(content)),
		Revision:   1,
	}
	file.StorageKey = storageKey(documentID, file.ID, 1, filename)

	if err := s.upload(dbc, file.StorageKey, content); err != nil {
		return nil, err
	}
	if _, err := s.files.Create(dbc, []*types.DocumentFile{file}); err != nil {
		return nil, &assembly.PersistenceError{Op: "create document file", Err: err}
	}
	return file, nil
}

func (s *DocumentStoreService) CreateFileFrom(dbc dbctx.Context, documentID uuid.UUID, sourceFileID uuid.UUID) (*types.DocumentFile, error) {
	src, err := s.files.GetByID(dbc, sourceFileID)
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "load source file", Err: err}
	}
	if src == nil {
		return nil, &assembly.PersistenceError{Op: "load source file", Err: fmt.Errorf("document file not found: %s", sourceFileID.String())}
	}

	file := &types.DocumentFile{
		ID:         uuid.New(),
		DocumentID: documentID,
		Filename:   src.Filename,
		Kind:       src.Kind,
		Size:       src.Size,
		Revision:   1,
	}
	file.StorageKey = storageKey(documentID, file.ID, 1, src.Filename)

	if err := s.copyObject(dbc, src.StorageKey, file.StorageKey); err != nil {
		return nil, err
	}
	if _, err := s.files.Create(dbc, []*types.DocumentFile{file}); err != nil {
		return nil, &assembly.PersistenceError{Op: "create document file", Err: err}
	}
	return file, nil
}

func (s *DocumentStoreService) Checkin(dbc dbctx.Context, fileID uuid.UUID, content []byte) (*types.DocumentFile, error) {
	file, err := s.loadUnlocked(dbc, fileID)
	if err != nil {
		return nil, err
	}

	newKey := storageKey(file.DocumentID, file.ID, file.Revision+1, file.Filename)
	if err := s.upload(dbc, newKey, content); err != nil {
		return nil, err
	}

	updated, err := s.files.Checkin(dbc, fileID, newKey, int64(len(content)))
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "checkin document file", Err: err}
	}
	return updated, nil
}

func (s *DocumentStoreService) CheckinCurrent(dbc dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error) {
	file, err := s.loadUnlocked(dbc, fileID)
	if err != nil {
		return nil, err
	}

	newKey := storageKey(file.DocumentID, file.ID, file.Revision+1, file.Filename)
	if err := s.copyObject(dbc, file.StorageKey, newKey); err != nil {
		return nil, err
	}

	updated, err := s.files.Checkin(dbc, fileID, newKey, file.Size)
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "checkin document file", Err: err}
	}
	return updated, nil
}

// Lock acquires the persisted per-file lock for owner. Fails with
// LockConflictError when another actor holds it.
func (s *DocumentStoreService) Lock(dbc dbctx.Context, fileID uuid.UUID, owner string) error {
	file, err := s.files.GetByID(dbc, fileID)
	if err != nil {
		return &assembly.PersistenceError{Op: "load document file", Err: err}
	}
	if file == nil {
		return &assembly.PersistenceError{Op: "load document file", Err: fmt.Errorf("document file not found: %s", fileID.String())}
	}
	if file.Locked {
		return &assembly.LockConflictError{FileID: fileID, Locker: file.Locker}
	}
	if err := s.files.SetLocked(dbc, fileID, true, owner); err != nil {
		return &assembly.PersistenceError{Op: "lock document file", Err: err}
	}
	return nil
}

func (s *DocumentStoreService) Unlock(dbc dbctx.Context, fileID uuid.UUID) error {
	if err := s.files.SetLocked(dbc, fileID, false, ""); err != nil {
		return &assembly.PersistenceError{Op: "unlock document file", Err: err}
	}
	return nil
}

func (s *DocumentStoreService) SetDeprecated(dbc dbctx.Context, fileID uuid.UUID, deprecated bool) error {
	if err := s.files.SetDeprecated(dbc, fileID, deprecated); err != nil {
		return &assembly.PersistenceError{Op: "mark document file deprecated", Err: err}
	}
	return nil
}

func (s *DocumentStoreService) loadUnlocked(dbc dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error) {
	file, err := s.files.GetByID(dbc, fileID)
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "load document file", Err: err}
	}
	if file == nil {
		return nil, &assembly.PersistenceError{Op: "load document file", Err: fmt.Errorf("document file not found: %s", fileID.String())}
	}
	if file.Locked {
		return nil, &assembly.LockConflictError{FileID: fileID, Locker: file.Locker}
	}
	return file, nil
}

// The key is journaled before the object is written: a journaled key with no
// object compensates as a no-op, while an unjournaled object could never be
// cleaned up.
func (s *DocumentStoreService) upload(dbc dbctx.Context, key string, content []byte) error {
	if err := s.record(dbc, key); err != nil {
		return err
	}
	if s.bucket != nil {
		if err := s.bucket.UploadFile(dbc, key, bytes.NewReader(content)); err != nil {
			return &assembly.PersistenceError{Op: "upload vault object", Err: err}
		}
	}
	return nil
}

func (s *DocumentStoreService) copyObject(dbc dbctx.Context, srcKey, dstKey string) error {
	if err := s.record(dbc, dstKey); err != nil {
		return err
	}
	if s.bucket != nil {
		if err := s.bucket.CopyObject(dbc.Ctx, srcKey, dstKey); err != nil {
			return &assembly.PersistenceError{Op: "copy vault object", Err: err}
		}
	}
	return nil
}

func (s *DocumentStoreService) record(dbc dbctx.Context, key string) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal(dbc, JournalKindVaultDeleteKey, map[string]any{"key": key}); err != nil {
		return &assembly.PersistenceError{Op: "journal vault object", Err: err}
	}
	return nil
}

func documentReference() string {
	id := uuid.New()
	raw := id.String()
	return "DOC-" + fmt.Sprintf("%.10s", replaceDashes(raw))
}

func replaceDashes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			continue
		}
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		out = append(out, c)
	}
	return string(out)
}

func storageKey(documentID, fileID uuid.UUID, revision int, filename string) string {
	return fmt.Sprintf("vault/%s/%s/r%d/%s", documentID.String(), fileID.String(), revision, filename)
}
