package docs

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/data/repos/testutil"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
)

func TestDocumentFileRepo_Checkin(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentFileRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "GEAR")
	file := testutil.SeedDocumentFile(t, ctx, tx, doc.ID, types.FileKindNative)
	if file.Revision != 1 {
		t.Fatalf("seed: expected revision 1, got %d", file.Revision)
	}

	updated, err := repo.Checkin(dbc, file.ID, "vault/gear/r2", 128)
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if updated.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", updated.Revision)
	}
	if updated.StorageKey != "vault/gear/r2" || updated.Size != 128 {
		t.Fatalf("checkin did not update storage fields: %+v", updated)
	}

	again, err := repo.Checkin(dbc, file.ID, "vault/gear/r3", 256)
	if err != nil {
		t.Fatalf("Checkin again: %v", err)
	}
	if again.Revision != 3 {
		t.Fatalf("revision must advance by exactly 1 per checkin, got %d", again.Revision)
	}

	if _, err := repo.Checkin(dbc, uuid.New(), "vault/nope", 1); err == nil {
		t.Fatalf("checkin of a missing file must fail")
	}
}

func TestDocumentFileRepo_LockAndDeprecate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentFileRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "GEAR")
	native := testutil.SeedDocumentFile(t, ctx, tx, doc.ID, types.FileKindNative)
	testutil.SeedDocumentFile(t, ctx, tx, doc.ID, types.FileKindStep)

	if err := repo.SetLocked(dbc, native.ID, true, "partforge-system"); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	locked, err := repo.GetByID(dbc, native.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !locked.Locked || locked.Locker != "partforge-system" {
		t.Fatalf("lock not persisted: %+v", locked)
	}

	if err := repo.SetLocked(dbc, native.ID, false, ""); err != nil {
		t.Fatalf("SetLocked release: %v", err)
	}
	released, _ := repo.GetByID(dbc, native.ID)
	if released.Locked || released.Locker != "" {
		t.Fatalf("lock not released: %+v", released)
	}

	if err := repo.SetDeprecated(dbc, native.ID, true); err != nil {
		t.Fatalf("SetDeprecated: %v", err)
	}
	rows, err := repo.GetByDocumentIDs(dbc, []uuid.UUID{doc.ID})
	if err != nil || len(rows) != 2 {
		t.Fatalf("GetByDocumentIDs: err=%v len=%d", err, len(rows))
	}
	for _, f := range rows {
		wantDeprecated := f.ID == native.ID
		if f.Deprecated != wantDeprecated {
			t.Fatalf("deprecated flag wrong on %s: %v", f.Kind, f.Deprecated)
		}
	}
}
