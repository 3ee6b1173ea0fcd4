package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/partforge/partforge-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedPart(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Part {
	tb.Helper()
	p := &types.Part{
		ID:             uuid.New(),
		Reference:      fmt.Sprintf("PART-%s", uuid.New().String()[:8]),
		Type:           "Part",
		Revision:       "a",
		Name:           name,
		LastModifiedAt: time.Now().UTC(),
		LastModifiedBy: "seed",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed part: %v", err)
	}
	return p
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:        uuid.New(),
		Reference: fmt.Sprintf("DOC-%s", uuid.New().String()[:8]),
		Type:      "Document3D",
		Revision:  "a",
		Name:      name,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedDocumentFile(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, kind string) *types.DocumentFile {
	tb.Helper()
	f := &types.DocumentFile{
		ID:         uuid.New(),
		DocumentID: documentID,
		Filename:   "model." + kind,
		Kind:       kind,
		Size:       64,
		StorageKey: fmt.Sprintf("vault/%s/r1", uuid.New().String()),
		Revision:   1,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed document file: %v", err)
	}
	return f
}

func SeedLink(tb testing.TB, ctx context.Context, tx *gorm.DB, parentID, childID uuid.UUID, order, quantity int) *types.ParentChildLink {
	tb.Helper()
	l := &types.ParentChildLink{
		ID:        uuid.New(),
		ParentID:  parentID,
		ChildID:   childID,
		Order:     order,
		Quantity:  quantity,
		Unit:      "-",
		StartTime: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed link: %v", err)
	}
	return l
}

func SeedExtension(tb testing.TB, ctx context.Context, tx *gorm.DB, linkID uuid.UUID, rank int, name string, transform datatypes.JSON) *types.LocationExtension {
	tb.Helper()
	e := &types.LocationExtension{
		ID:        uuid.New(),
		LinkID:    linkID,
		Rank:      rank,
		Name:      name,
		Transform: transform,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed location extension: %v", err)
	}
	return e
}
