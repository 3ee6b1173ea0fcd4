package docs

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/partforge/partforge-backend/internal/data/repos/testutil"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "GEAR")

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %+v, %v", got, err)
	}

	exists, err := repo.ExistsByIdentity(dbc, doc.Reference, doc.Type, doc.Revision)
	if err != nil {
		t.Fatalf("ExistsByIdentity: %v", err)
	}
	if !exists {
		t.Fatalf("expected identity to exist")
	}

	exists, err = repo.ExistsByIdentity(dbc, doc.Reference, doc.Type, "b")
	if err != nil {
		t.Fatalf("ExistsByIdentity other revision: %v", err)
	}
	if exists {
		t.Fatalf("a different revision is a different identity")
	}

	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: expected nil,nil got %+v, %v", missing, err)
	}

	if err := repo.DeleteByIDs(dbc, []uuid.UUID{doc.ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if gone, err := repo.GetByID(dbc, doc.ID); err != nil || gone != nil {
		t.Fatalf("expected document gone, got %+v, %v", gone, err)
	}
}
