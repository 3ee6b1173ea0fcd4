package bom

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type LocationExtensionRepo interface {
	Create(dbc dbctx.Context, extensions []*types.LocationExtension) ([]*types.LocationExtension, error)
	GetByLinkID(dbc dbctx.Context, linkID uuid.UUID) ([]*types.LocationExtension, error)
	GetByLinkIDs(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.LocationExtension, error)
}

type locationExtensionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLocationExtensionRepo(db *gorm.DB, baseLog *logger.Logger) LocationExtensionRepo {
	repoLog := baseLog.With("repo", "LocationExtensionRepo")
	return &locationExtensionRepo{db: db, log: repoLog}
}

func (r *locationExtensionRepo) Create(dbc dbctx.Context, extensions []*types.LocationExtension) ([]*types.LocationExtension, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(extensions) == 0 {
		return []*types.LocationExtension{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&extensions).Error; err != nil {
		return nil, err
	}
	return extensions, nil
}

func (r *locationExtensionRepo) GetByLinkID(dbc dbctx.Context, linkID uuid.UUID) ([]*types.LocationExtension, error) {
	return r.GetByLinkIDs(dbc, []uuid.UUID{linkID})
}

func (r *locationExtensionRepo) GetByLinkIDs(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.LocationExtension, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.LocationExtension
	if len(linkIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("link_id IN ?", linkIDs).
		Order("rank ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
