package bom

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type ParentChildLinkRepo interface {
	Create(dbc dbctx.Context, links []*types.ParentChildLink) ([]*types.ParentChildLink, error)
	GetByIDs(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.ParentChildLink, error)
	GetActiveByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.ParentChildLink, error)
	GetActiveByParentIDs(dbc dbctx.Context, parentIDs []uuid.UUID) ([]*types.ParentChildLink, error)
	EndByIDs(dbc dbctx.Context, linkIDs []uuid.UUID, at time.Time) error
}

type parentChildLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParentChildLinkRepo(db *gorm.DB, baseLog *logger.Logger) ParentChildLinkRepo {
	repoLog := baseLog.With("repo", "ParentChildLinkRepo")
	return &parentChildLinkRepo{db: db, log: repoLog}
}

func (r *parentChildLinkRepo) Create(dbc dbctx.Context, links []*types.ParentChildLink) ([]*types.ParentChildLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(links) == 0 {
		return []*types.ParentChildLink{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *parentChildLinkRepo) GetByIDs(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.ParentChildLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ParentChildLink
	if len(linkIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", linkIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *parentChildLinkRepo) GetActiveByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.ParentChildLink, error) {
	return r.GetActiveByParentIDs(dbc, []uuid.UUID{parentID})
}

func (r *parentChildLinkRepo) GetActiveByParentIDs(dbc dbctx.Context, parentIDs []uuid.UUID) ([]*types.ParentChildLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ParentChildLink
	if len(parentIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_id IN ? AND end_time IS NULL", parentIDs).
		Order("child_order ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *parentChildLinkRepo) EndByIDs(dbc dbctx.Context, linkIDs []uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(linkIDs) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.ParentChildLink{}).
		Where("id IN ? AND end_time IS NULL", linkIDs).
		Update("end_time", at).Error
}
