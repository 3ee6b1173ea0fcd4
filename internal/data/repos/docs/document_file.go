package docs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type DocumentFileRepo interface {
	Create(dbc dbctx.Context, files []*types.DocumentFile) ([]*types.DocumentFile, error)
	GetByID(dbc dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error)
	GetByIDs(dbc dbctx.Context, fileIDs []uuid.UUID) ([]*types.DocumentFile, error)
	GetByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentFile, error)

	// Checkin advances the file's revision by exactly 1 and points it at the
	// new revision's vault object. Returns the updated row.
	Checkin(dbc dbctx.Context, fileID uuid.UUID, storageKey string, size int64) (*types.DocumentFile, error)

	SetLocked(dbc dbctx.Context, fileID uuid.UUID, locked bool, locker string) error
	SetDeprecated(dbc dbctx.Context, fileID uuid.UUID, deprecated bool) error
	DeleteByIDs(dbc dbctx.Context, fileIDs []uuid.UUID) error
}

type documentFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentFileRepo(db *gorm.DB, baseLog *logger.Logger) DocumentFileRepo {
	repoLog := baseLog.With("repo", "DocumentFileRepo")
	return &documentFileRepo{db: db, log: repoLog}
}

func (r *documentFileRepo) Create(dbc dbctx.Context, files []*types.DocumentFile) ([]*types.DocumentFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(files) == 0 {
		return []*types.DocumentFile{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *documentFileRepo) GetByID(dbc dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.DocumentFile
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", fileID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *documentFileRepo) GetByIDs(dbc dbctx.Context, fileIDs []uuid.UUID) ([]*types.DocumentFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DocumentFile
	if len(fileIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", fileIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentFileRepo) GetByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DocumentFile
	if len(documentIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id IN ?", documentIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentFileRepo) Checkin(dbc dbctx.Context, fileID uuid.UUID, storageKey string, size int64) (*types.DocumentFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentFile{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"revision":    gorm.Expr("revision + 1"),
			"storage_key": storageKey,
			"size":        size,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("checkin: document file not found: %s", fileID.String())
	}
	return r.GetByID(dbc, fileID)
}

func (r *documentFileRepo) SetLocked(dbc dbctx.Context, fileID uuid.UUID, locked bool, locker string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentFile{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"locked": locked,
			"locker": locker,
		}).Error
}

func (r *documentFileRepo) SetDeprecated(dbc dbctx.Context, fileID uuid.UUID, deprecated bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentFile{}).
		Where("id = ?", fileID).
		Update("deprecated", deprecated).Error
}

func (r *documentFileRepo) DeleteByIDs(dbc dbctx.Context, fileIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fileIDs) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id IN ?", fileIDs).
		Delete(&types.DocumentFile{}).Error
}
