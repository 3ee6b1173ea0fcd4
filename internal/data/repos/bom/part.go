package bom

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type PartRepo interface {
	Create(dbc dbctx.Context, parts []*types.Part) ([]*types.Part, error)
	GetByID(dbc dbctx.Context, partID uuid.UUID) (*types.Part, error)
	GetByIDs(dbc dbctx.Context, partIDs []uuid.UUID) ([]*types.Part, error)
	UpdateFields(dbc dbctx.Context, partID uuid.UUID, fields map[string]interface{}) error
	TouchLastModified(dbc dbctx.Context, partID uuid.UUID, actor string, at time.Time) error
	DeleteByIDs(dbc dbctx.Context, partIDs []uuid.UUID) error
}

type partRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPartRepo(db *gorm.DB, baseLog *logger.Logger) PartRepo {
	repoLog := baseLog.With("repo", "PartRepo")
	return &partRepo{db: db, log: repoLog}
}

func (r *partRepo) Create(dbc dbctx.Context, parts []*types.Part) ([]*types.Part, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(parts) == 0 {
		return []*types.Part{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *partRepo) GetByID(dbc dbctx.Context, partID uuid.UUID) (*types.Part, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Part
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", partID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *partRepo) GetByIDs(dbc dbctx.Context, partIDs []uuid.UUID) ([]*types.Part, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Part
	if len(partIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", partIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *partRepo) UpdateFields(dbc dbctx.Context, partID uuid.UUID, fields map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.Part{}).
		Where("id = ?", partID).
		Updates(fields).Error
}

func (r *partRepo) TouchLastModified(dbc dbctx.Context, partID uuid.UUID, actor string, at time.Time) error {
	return r.UpdateFields(dbc, partID, map[string]interface{}{
		"last_modified_at": at,
		"last_modified_by": actor,
	})
}

func (r *partRepo) DeleteByIDs(dbc dbctx.Context, partIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(partIDs) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id IN ?", partIDs).
		Delete(&types.Part{}).Error
}
