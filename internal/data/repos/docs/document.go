package docs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, documents []*types.Document) ([]*types.Document, error)
	GetByID(dbc dbctx.Context, documentID uuid.UUID) (*types.Document, error)
	GetByIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.Document, error)
	ExistsByIdentity(dbc dbctx.Context, reference, docType, revision string) (bool, error)
	DeleteByIDs(dbc dbctx.Context, documentIDs []uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) Create(dbc dbctx.Context, documents []*types.Document) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(documents) == 0 {
		return []*types.Document{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, documentID uuid.UUID) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Document
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", documentID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Document
	if len(documentIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", documentIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) ExistsByIdentity(dbc dbctx.Context, reference, docType, revision string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("reference = ? AND type = ? AND revision = ?", reference, docType, revision).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *documentRepo) DeleteByIDs(dbc dbctx.Context, documentIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(documentIDs) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id IN ?", documentIDs).
		Delete(&types.Document{}).Error
}
