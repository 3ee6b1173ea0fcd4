package jobs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type DecompositionRunRepo interface {
	Create(dbc dbctx.Context, runs []*types.DecompositionRun) ([]*types.DecompositionRun, error)
	GetByID(dbc dbctx.Context, runID uuid.UUID) (*types.DecompositionRun, error)
	UpdateFields(dbc dbctx.Context, runID uuid.UUID, fields map[string]interface{}) error
}

type DecompositionActionRepo interface {
	Create(dbc dbctx.Context, actions []*types.DecompositionAction) ([]*types.DecompositionAction, error)
	GetMaxSeq(dbc dbctx.Context, runID uuid.UUID) (int, error)
	ListByRunIDDesc(dbc dbctx.Context, runID uuid.UUID) ([]*types.DecompositionAction, error)
	UpdateFields(dbc dbctx.Context, actionID uuid.UUID, fields map[string]interface{}) error
}

type decompositionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecompositionRunRepo(db *gorm.DB, baseLog *logger.Logger) DecompositionRunRepo {
	repoLog := baseLog.With("repo", "DecompositionRunRepo")
	return &decompositionRunRepo{db: db, log: repoLog}
}

func (r *decompositionRunRepo) Create(dbc dbctx.Context, runs []*types.DecompositionRun) ([]*types.DecompositionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(runs) == 0 {
		return []*types.DecompositionRun{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *decompositionRunRepo) GetByID(dbc dbctx.Context, runID uuid.UUID) (*types.DecompositionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.DecompositionRun
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", runID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *decompositionRunRepo) UpdateFields(dbc dbctx.Context, runID uuid.UUID, fields map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.DecompositionRun{}).
		Where("id = ?", runID).
		Updates(fields).Error
}

type decompositionActionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecompositionActionRepo(db *gorm.DB, baseLog *logger.Logger) DecompositionActionRepo {
	repoLog := baseLog.With("repo", "DecompositionActionRepo")
	return &decompositionActionRepo{db: db, log: repoLog}
}

func (r *decompositionActionRepo) Create(dbc dbctx.Context, actions []*types.DecompositionAction) ([]*types.DecompositionAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(actions) == 0 {
		return []*types.DecompositionAction{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *decompositionActionRepo) GetMaxSeq(dbc dbctx.Context, runID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var maxSeq *int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.DecompositionAction{}).
		Where("run_id = ?", runID).
		Select("MAX(seq)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

func (r *decompositionActionRepo) ListByRunIDDesc(dbc dbctx.Context, runID uuid.UUID) ([]*types.DecompositionAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DecompositionAction
	if err := transaction.WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("seq DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *decompositionActionRepo) UpdateFields(dbc dbctx.Context, actionID uuid.UUID, fields map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.DecompositionAction{}).
		Where("id = ?", actionID).
		Updates(fields).Error
}
