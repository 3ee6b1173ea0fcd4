package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type fakeRunRepo struct {
	runs map[uuid.UUID]*types.DecompositionRun
}

func (r *fakeRunRepo) Create(_ dbctx.Context, runs []*types.DecompositionRun) ([]*types.DecompositionRun, error) {
	for _, run := range runs {
		r.runs[run.ID] = run
	}
	return runs, nil
}

func (r *fakeRunRepo) GetByID(_ dbctx.Context, runID uuid.UUID) (*types.DecompositionRun, error) {
	return r.runs[runID], nil
}

func (r *fakeRunRepo) UpdateFields(_ dbctx.Context, runID uuid.UUID, fields map[string]interface{}) error {
	run, ok := r.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	if status, ok := fields["status"].(string); ok {
		run.Status = status
	}
	if msg, ok := fields["error"].(string); ok {
		run.Error = msg
	}
	return nil
}

type fakeActionRepo struct {
	actions []*types.DecompositionAction
}

func (r *fakeActionRepo) Create(_ dbctx.Context, actions []*types.DecompositionAction) ([]*types.DecompositionAction, error) {
	r.actions = append(r.actions, actions...)
	return actions, nil
}

func (r *fakeActionRepo) GetMaxSeq(_ dbctx.Context, runID uuid.UUID) (int, error) {
	max := 0
	for _, a := range r.actions {
		if a.RunID == runID && a.Seq > max {
			max = a.Seq
		}
	}
	return max, nil
}

func (r *fakeActionRepo) ListByRunIDDesc(_ dbctx.Context, runID uuid.UUID) ([]*types.DecompositionAction, error) {
	var out []*types.DecompositionAction
	for _, a := range r.actions {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *fakeActionRepo) UpdateFields(_ dbctx.Context, actionID uuid.UUID, fields map[string]interface{}) error {
	for _, a := range r.actions {
		if a.ID == actionID {
			if status, ok := fields["status"].(string); ok {
				a.Status = status
			}
			return nil
		}
	}
	return errors.New("action not found")
}

type fakeBucket struct {
	deleted []string
	failOn  string
}

func (b *fakeBucket) UploadFile(_ dbctx.Context, key string, _ io.Reader) error { return nil }

func (b *fakeBucket) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (b *fakeBucket) CopyObject(_ context.Context, srcKey, dstKey string) error { return nil }

func (b *fakeBucket) DeleteFile(_ dbctx.Context, key string) error {
	if key == b.failOn {
		return errors.New("delete failed")
	}
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBucket) ListKeys(_ context.Context, prefix string) ([]string, error) { return nil, nil }

func newServiceUnderTest(t *testing.T, bucket *fakeBucket) (*DecompositionService, *fakeRunRepo, *fakeActionRepo) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	runs := &fakeRunRepo{runs: map[uuid.UUID]*types.DecompositionRun{}}
	actions := &fakeActionRepo{}
	bundle := &repos.Bundle{Runs: runs, Actions: actions}
	svc := &DecompositionService{
		log:     log.With("service", "DecompositionService"),
		baseLog: log,
		repos:   bundle,
		bucket:  bucket,
	}
	return svc, runs, actions
}

func TestJournalAssignsIncreasingSeq(t *testing.T) {
	svc, _, actions := newServiceUnderTest(t, &fakeBucket{})
	runID := uuid.New()
	journal := svc.journalFor(runID)
	dbc := dbctx.Context{Ctx: context.Background()}

	for _, key := range []string{"vault/a", "vault/b", "vault/c"} {
		if err := journal(dbc, JournalKindVaultDeleteKey, map[string]any{"key": key}); err != nil {
			t.Fatalf("journal: %v", err)
		}
	}

	if len(actions.actions) != 3 {
		t.Fatalf("expected 3 journal rows, got %d", len(actions.actions))
	}
	for i, a := range actions.actions {
		if a.Seq != i+1 {
			t.Fatalf("row %d: expected seq %d, got %d", i, i+1, a.Seq)
		}
		if a.RunID != runID || a.Kind != JournalKindVaultDeleteKey || a.Status != ActionStatusRecorded {
			t.Fatalf("row %d malformed: %+v", i, a)
		}
	}
}

func TestCompensateDeletesJournaledKeysNewestFirst(t *testing.T) {
	bucket := &fakeBucket{}
	svc, runs, actions := newServiceUnderTest(t, bucket)
	dbc := dbctx.Context{Ctx: context.Background()}

	runID := uuid.New()
	runs.runs[runID] = &types.DecompositionRun{ID: runID, Status: RunStatusRunning}

	journal := svc.journalFor(runID)
	for _, key := range []string{"vault/first", "vault/second"} {
		if err := journal(dbc, JournalKindVaultDeleteKey, map[string]any{"key": key}); err != nil {
			t.Fatalf("journal: %v", err)
		}
	}

	svc.compensate(dbc, runID, errors.New("pipeline failed"))

	if len(bucket.deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", bucket.deleted)
	}
	if bucket.deleted[0] != "vault/second" || bucket.deleted[1] != "vault/first" {
		t.Fatalf("deletions must run newest-first, got %v", bucket.deleted)
	}
	for _, a := range actions.actions {
		if a.Status != ActionStatusCompensated {
			t.Fatalf("action %d not marked compensated: %+v", a.Seq, a)
		}
	}
	run := runs.runs[runID]
	if run.Status != RunStatusCompensated {
		t.Fatalf("expected run compensated, got %q", run.Status)
	}
	if run.Error == "" {
		t.Fatalf("failure cause must be recorded on the run")
	}
}

func TestCompensateMarksFailedSteps(t *testing.T) {
	bucket := &fakeBucket{failOn: "vault/poison"}
	svc, runs, actions := newServiceUnderTest(t, bucket)
	dbc := dbctx.Context{Ctx: context.Background()}

	runID := uuid.New()
	runs.runs[runID] = &types.DecompositionRun{ID: runID, Status: RunStatusRunning}

	journal := svc.journalFor(runID)
	_ = journal(dbc, JournalKindVaultDeleteKey, map[string]any{"key": "vault/ok"})
	_ = journal(dbc, JournalKindVaultDeleteKey, map[string]any{"key": "vault/poison"})

	svc.compensate(dbc, runID, errors.New("boom"))

	if runs.runs[runID].Status != RunStatusFailed {
		t.Fatalf("a failed step must leave the run failed, got %q", runs.runs[runID].Status)
	}
	byKey := map[int]string{}
	for _, a := range actions.actions {
		byKey[a.Seq] = a.Status
	}
	if byKey[1] != ActionStatusCompensated {
		t.Fatalf("clean step must be compensated, got %q", byKey[1])
	}
	if byKey[2] != ActionStatusFailed {
		t.Fatalf("poisoned step must be marked failed, got %q", byKey[2])
	}
}

func TestFinishRunRecordsDelta(t *testing.T) {
	svc, runs, _ := newServiceUnderTest(t, &fakeBucket{})
	dbc := dbctx.Context{Ctx: context.Background()}

	runID := uuid.New()
	runs.runs[runID] = &types.DecompositionRun{ID: runID, Status: RunStatusRunning}

	svc.finishRun(dbc, runID, nil)
	if runs.runs[runID].Status != RunStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", runs.runs[runID].Status)
	}
}
