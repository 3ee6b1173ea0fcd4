package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/modules/assembly"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/gcp"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

const (
	RunStatusRunning     = "running"
	RunStatusSucceeded   = "succeeded"
	RunStatusFailed      = "failed"
	RunStatusCompensated = "compensated"

	ActionStatusRecorded    = "recorded"
	ActionStatusCompensated = "compensated"
	ActionStatusFailed      = "failed"
)

// ExternalPipeline is the CAD-side collaborator invoked after the graph is
// written but before the transaction commits, so a regeneration failure rolls
// the whole pass back.
type ExternalPipeline interface {
	Regenerate(ctx context.Context, rootPartID uuid.UUID, delta *assembly.GraphDelta) error
}

// DecomposeInput is one request to decompose or re-synchronize a root part
// from an assembly tree.
type DecomposeInput struct {
	RootPartID uuid.UUID
	RootFileID uuid.UUID
	Tree       *assembly.AssemblyNode
	Actor      string

	// Optimistic concurrency token. When set, the pass aborts with
	// ConcurrentModificationError if the root part changed since the caller
	// read it.
	ExpectedLastModifiedAt *time.Time
}

// DecomposeResult reports what one finished pass did.
type DecomposeResult struct {
	RunID    uuid.UUID
	RootPart *types.Part
	Delta    *assembly.GraphDelta
	Updated  bool
}

// DecompositionService is the transaction envelope around a build/update pass:
// root-file locking, optimistic concurrency, the database transaction, the
// compensation journal for vault objects, and the pipeline hook.
type DecompositionService struct {
	db      *gorm.DB
	log     *logger.Logger
	baseLog *logger.Logger
	repos   *repos.Bundle

	store      *DocumentStoreService
	bucket     gcp.BucketService
	projection *BOMProjectionService
	pipeline   ExternalPipeline

	systemActor string
}

func NewDecompositionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	bundle *repos.Bundle,
	store *DocumentStoreService,
	bucket gcp.BucketService,
	projection *BOMProjectionService,
	pipeline ExternalPipeline,
	systemActor string,
) *DecompositionService {
	return &DecompositionService{
		db:          db,
		log:         baseLog.With("service", "DecompositionService"),
		baseLog:     baseLog,
		repos:       bundle,
		store:       store,
		bucket:      bucket,
		projection:  projection,
		pipeline:    pipeline,
		systemActor: systemActor,
	}
}

// Decompose runs one full pass. First decomposition of a part builds its BOM
// subtree; later passes synchronize the persisted graph against the new tree.
func (s *DecompositionService) Decompose(ctx context.Context, in DecomposeInput) (*DecomposeResult, error) {
	tracer := otel.Tracer("partforge/decomposition")
	ctx, span := tracer.Start(ctx, "DecompositionService.Decompose")
	defer span.End()
	span.SetAttributes(
		attribute.String("root_part_id", in.RootPartID.String()),
		attribute.String("root_file_id", in.RootFileID.String()),
	)

	result, err := s.decompose(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *DecompositionService) decompose(ctx context.Context, in DecomposeInput) (*DecomposeResult, error) {
	if in.Tree == nil {
		return nil, fmt.Errorf("decompose: tree required")
	}
	if in.Actor == "" {
		return nil, fmt.Errorf("decompose: actor required")
	}

	dbc := dbctx.Context{Ctx: ctx}

	rootPart, rootFile, err := s.loadRoot(dbc, in)
	if err != nil {
		return nil, err
	}

	// The resolver's structural-signature cache is scoped to one pass, so a
	// fresh resolver per call.
	resolver := assembly.NewResolver(s.repos.Parts, s.repos.Documents, s.repos.DocumentFiles, s.baseLog)

	// Resolve every PartRef/DocumentRef/FileID of the tree in batch before
	// touching anything. Unknown references fail the pass up front.
	refs, err := resolver.FetchReferences(dbc, in.Tree)
	if err != nil {
		return nil, err
	}

	// The root file is worked on under the system actor's lock for the whole
	// pass. Existing locks by anyone, including the caller, conflict.
	if err := s.store.Lock(dbc, rootFile.ID, s.systemActor); err != nil {
		return nil, err
	}
	defer func() {
		if uerr := s.store.Unlock(dbc, rootFile.ID); uerr != nil {
			s.log.Error("failed to release root file lock", "file_id", rootFile.ID, "error", uerr)
		}
	}()

	// A step root supersedes the native file of the same document for the
	// duration of the pass.
	deprecatedSibling, err := s.deprecateNativeSibling(dbc, rootFile)
	if err != nil {
		return nil, err
	}
	if deprecatedSibling != nil {
		defer func() {
			if rerr := s.store.SetDeprecated(dbc, deprecatedSibling.ID, false); rerr != nil {
				s.log.Error("failed to restore native sibling", "file_id", deprecatedSibling.ID, "error", rerr)
			}
		}()
	}

	// The run row and its journal live outside the pass transaction so that
	// vault keys written before a rollback stay reachable for cleanup.
	run, err := s.createRun(dbc, in)
	if err != nil {
		return nil, err
	}

	journal := s.journalFor(run.ID)
	boundStore := s.store.Bound(journal)

	var (
		delta   *assembly.GraphDelta
		updated bool
		now     = time.Now().UTC()
	)

	txErr := s.inTransaction(ctx, func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}

		// Optimistic concurrency: re-read under the transaction.
		current, err := s.repos.Parts.GetByID(txc, rootPart.ID)
		if err != nil {
			return &assembly.PersistenceError{Op: "reload root part", Err: err}
		}
		if current == nil {
			return &assembly.PersistenceError{Op: "reload root part", Err: fmt.Errorf("part not found: %s", rootPart.ID.String())}
		}
		if in.ExpectedLastModifiedAt != nil && !current.LastModifiedAt.Equal(*in.ExpectedLastModifiedAt) {
			return &assembly.ConcurrentModificationError{
				PartID:   current.ID,
				Expected: *in.ExpectedLastModifiedAt,
				Actual:   current.LastModifiedAt,
			}
		}

		builder := assembly.NewBuilder(s.repos.Parts, s.repos.Links, s.repos.Extensions, boundStore, resolver, s.baseLog)

		activeLinks, err := s.repos.Links.GetActiveByParentID(txc, current.ID)
		if err != nil {
			return &assembly.PersistenceError{Op: "load active links", Err: err}
		}

		if len(activeLinks) == 0 && current.DecompositionDocumentID == nil {
			delta, err = builder.BuildUnder(txc, current, in.Tree, refs, in.Actor)
		} else {
			updated = true
			synchronizer := assembly.NewSynchronizer(s.repos.Links, s.repos.Extensions, builder, s.baseLog)
			delta, err = synchronizer.Update(txc, current, in.Tree, refs, in.Actor)
		}
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if current.DecompositionDocumentID == nil {
			fields["decomposition_document_id"] = rootFile.DocumentID
		}
		if len(fields) > 0 {
			if err := s.repos.Parts.UpdateFields(txc, current.ID, fields); err != nil {
				return &assembly.PersistenceError{Op: "attach decomposition document", Err: err}
			}
		}
		if err := s.repos.Parts.TouchLastModified(txc, current.ID, in.Actor, now); err != nil {
			return &assembly.PersistenceError{Op: "touch root part", Err: err}
		}

		if s.pipeline != nil {
			if err := s.pipeline.Regenerate(ctx, current.ID, delta); err != nil {
				return &assembly.ExternalPipelineError{Stage: "regenerate", Err: err}
			}
		}
		return nil
	})

	if txErr != nil {
		s.compensate(dbc, run.ID, txErr)
		return nil, txErr
	}

	s.finishRun(dbc, run.ID, delta)

	if s.projection.Enabled() {
		if perr := s.projection.Apply(ctx, delta); perr != nil {
			s.log.Warn("BOM graph projection failed", "run_id", run.ID, "error", perr)
		}
	}

	refreshed, err := s.repos.Parts.GetByID(dbc, rootPart.ID)
	if err != nil || refreshed == nil {
		refreshed = rootPart
	}

	s.log.Info("decomposition pass finished",
		"run_id", run.ID,
		"root_part_id", rootPart.ID,
		"updated", updated,
		"created_parts", len(delta.CreatedPartIDs),
		"created_links", len(delta.CreatedLinkIDs),
		"ended_links", len(delta.EndedLinkIDs))

	return &DecomposeResult{
		RunID:    run.ID,
		RootPart: refreshed,
		Delta:    delta,
		Updated:  updated,
	}, nil
}

// inTransaction runs the pass body. A nil handle runs it on the base
// connection without transactional guarantees.
func (s *DecompositionService) inTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *DecompositionService) loadRoot(dbc dbctx.Context, in DecomposeInput) (*types.Part, *types.DocumentFile, error) {
	part, err := s.repos.Parts.GetByID(dbc, in.RootPartID)
	if err != nil {
		return nil, nil, &assembly.PersistenceError{Op: "load root part", Err: err}
	}
	if part == nil {
		return nil, nil, &assembly.PersistenceError{Op: "load root part", Err: fmt.Errorf("part not found: %s", in.RootPartID.String())}
	}

	file, err := s.repos.DocumentFiles.GetByID(dbc, in.RootFileID)
	if err != nil {
		return nil, nil, &assembly.PersistenceError{Op: "load root file", Err: err}
	}
	if file == nil {
		return nil, nil, &assembly.PersistenceError{Op: "load root file", Err: fmt.Errorf("document file not found: %s", in.RootFileID.String())}
	}
	if file.Deprecated {
		return nil, nil, &assembly.DeprecatedFileError{FileID: file.ID}
	}
	if part.DecompositionDocumentID != nil && *part.DecompositionDocumentID != file.DocumentID {
		return nil, nil, &assembly.AmbiguousIdentityError{
			ComponentName: part.Name,
			Reason:        "root file belongs to a different document than the part's decomposition document",
		}
	}
	return part, file, nil
}

// deprecateNativeSibling marks the native-kind file of the root document
// deprecated when decomposing from the step file, returning it for the
// deferred restore. No-op when the root file is itself native.
func (s *DecompositionService) deprecateNativeSibling(dbc dbctx.Context, rootFile *types.DocumentFile) (*types.DocumentFile, error) {
	if rootFile.Kind != types.FileKindStep {
		return nil, nil
	}
	siblings, err := s.repos.DocumentFiles.GetByDocumentIDs(dbc, []uuid.UUID{rootFile.DocumentID})
	if err != nil {
		return nil, &assembly.PersistenceError{Op: "load sibling files", Err: err}
	}
	for _, f := range siblings {
		if f.Kind == types.FileKindNative && !f.Deprecated {
			if f.Locked {
				return nil, &assembly.LockConflictError{FileID: f.ID, Locker: f.Locker}
			}
			if err := s.store.SetDeprecated(dbc, f.ID, true); err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	return nil, nil
}

func (s *DecompositionService) createRun(dbc dbctx.Context, in DecomposeInput) (*types.DecompositionRun, error) {
	run := &types.DecompositionRun{
		ID:         uuid.New(),
		RootPartID: in.RootPartID,
		RootFileID: in.RootFileID,
		Actor:      in.Actor,
		Status:     RunStatusRunning,
	}
	if _, err := s.repos.Runs.Create(dbc, []*types.DecompositionRun{run}); err != nil {
		return nil, &assembly.PersistenceError{Op: "create decomposition run", Err: err}
	}
	return run, nil
}

// journalFor returns the VaultJournal bound to a run. Journal rows are written
// on the base connection, never the pass transaction.
func (s *DecompositionService) journalFor(runID uuid.UUID) VaultJournal {
	var seq int
	return func(dbc dbctx.Context, kind string, payload map[string]any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		seq++
		action := &types.DecompositionAction{
			ID:      uuid.New(),
			RunID:   runID,
			Seq:     seq,
			Kind:    kind,
			Payload: datatypes.JSON(raw),
			Status:  ActionStatusRecorded,
		}
		base := dbctx.Context{Ctx: dbc.Ctx}
		_, err = s.repos.Actions.Create(base, []*types.DecompositionAction{action})
		return err
	}
}

// compensate deletes every vault object the failed pass journaled, newest
// first, and marks the run. The database transaction already rolled back, so
// the journaled keys are the only surviving side effects.
func (s *DecompositionService) compensate(dbc dbctx.Context, runID uuid.UUID, cause error) {
	s.log.Warn("decomposition pass failed, compensating", "run_id", runID, "error", cause)

	actions, err := s.repos.Actions.ListByRunIDDesc(dbc, runID)
	if err != nil {
		s.log.Error("failed to load compensation journal", "run_id", runID, "error", err)
		s.markRun(dbc, runID, RunStatusFailed, cause)
		return
	}

	clean := true
	for _, action := range actions {
		status := ActionStatusCompensated
		if err := s.compensateAction(dbc, action); err != nil {
			s.log.Error("compensation step failed",
				"run_id", runID, "action_id", action.ID, "kind", action.Kind, "error", err)
			status = ActionStatusFailed
			clean = false
		}
		if err := s.repos.Actions.UpdateFields(dbc, action.ID, map[string]interface{}{"status": status}); err != nil {
			s.log.Error("failed to mark compensation step", "action_id", action.ID, "error", err)
		}
	}

	final := RunStatusCompensated
	if !clean {
		final = RunStatusFailed
	}
	s.markRun(dbc, runID, final, cause)
}

func (s *DecompositionService) compensateAction(dbc dbctx.Context, action *types.DecompositionAction) error {
	switch action.Kind {
	case JournalKindVaultDeleteKey:
		var payload struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return err
		}
		if payload.Key == "" || s.bucket == nil {
			return nil
		}
		return s.bucket.DeleteFile(dbc, payload.Key)
	default:
		return fmt.Errorf("unknown journal kind %q", action.Kind)
	}
}

func (s *DecompositionService) markRun(dbc dbctx.Context, runID uuid.UUID, status string, cause error) {
	fields := map[string]interface{}{"status": status}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	if err := s.repos.Runs.UpdateFields(dbc, runID, fields); err != nil {
		s.log.Error("failed to mark decomposition run", "run_id", runID, "error", err)
	}
}

func (s *DecompositionService) finishRun(dbc dbctx.Context, runID uuid.UUID, delta *assembly.GraphDelta) {
	fields := map[string]interface{}{"status": RunStatusSucceeded}
	if raw, err := json.Marshal(delta); err == nil {
		fields["delta"] = datatypes.JSON(raw)
	}
	if err := s.repos.Runs.UpdateFields(dbc, runID, fields); err != nil {
		s.log.Error("failed to finish decomposition run", "run_id", runID, "error", err)
	}
}
