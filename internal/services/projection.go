package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/partforge/partforge-backend/internal/data/repos"
	"github.com/partforge/partforge-backend/internal/modules/assembly"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
	"github.com/partforge/partforge-backend/internal/platform/neo4jdb"
)

// BOMProjectionService mirrors the relational BOM graph into Neo4j so the
// where-used and multi-level explosion queries can run on the graph side.
// Projection is best-effort and strictly read-after-commit: it consumes the
// delta of a finished pass, never in-flight rows.
type BOMProjectionService struct {
	client *neo4jdb.Client
	log    *logger.Logger
	parts  repos.PartRepo
	links  repos.ParentChildLinkRepo
}

func NewBOMProjectionService(
	client *neo4jdb.Client,
	baseLog *logger.Logger,
	parts repos.PartRepo,
	links repos.ParentChildLinkRepo,
) *BOMProjectionService {
	return &BOMProjectionService{
		client: client,
		log:    baseLog.With("service", "BOMProjectionService"),
		parts:  parts,
		links:  links,
	}
}

// Enabled reports whether a graph database is configured.
func (s *BOMProjectionService) Enabled() bool { return s != nil && s.client != nil }

// Apply projects one pass's delta. Errors are returned for the caller to log;
// the relational graph is already committed, so nothing is rolled back here.
func (s *BOMProjectionService) Apply(ctx context.Context, delta *assembly.GraphDelta) error {
	if !s.Enabled() || delta.Empty() {
		return nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	partIDs := append([]string{}, uuidStrings(delta.CreatedPartIDs)...)
	parts, err := s.parts.GetByIDs(dbc, delta.CreatedPartIDs)
	if err != nil {
		return err
	}
	partNodes := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		partNodes = append(partNodes, map[string]any{
			"id":        p.ID.String(),
			"reference": p.Reference,
			"type":      p.Type,
			"revision":  p.Revision,
			"name":      p.Name,
			"synced_at": now,
		})
	}

	createdLinks, err := s.links.GetByIDs(dbc, delta.CreatedLinkIDs)
	if err != nil {
		return err
	}
	linkRels := make([]map[string]any, 0, len(createdLinks))
	for _, l := range createdLinks {
		linkRels = append(linkRels, map[string]any{
			"link_id":     l.ID.String(),
			"parent_id":   l.ParentID.String(),
			"child_id":    l.ChildID.String(),
			"child_order": l.Order,
			"quantity":    l.Quantity,
			"unit":        l.Unit,
			"synced_at":   now,
		})
	}

	endedIDs := uuidStrings(delta.EndedLinkIDs)

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT part_id_unique IF NOT EXISTS FOR (p:Part) REQUIRE p.id IS UNIQUE`,
			`CREATE CONSTRAINT bom_link_id_unique IF NOT EXISTS FOR ()-[r:HAS_CHILD]-() REQUIRE r.link_id IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(partNodes) > 0 {
			if res, err := tx.Run(ctx, `
UNWIND $parts AS part
MERGE (p:Part {id: part.id})
SET p += part
`, map[string]any{"parts": partNodes}); err != nil {
				return nil, err
			} else if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(linkRels) > 0 {
			if res, err := tx.Run(ctx, `
UNWIND $links AS link
MERGE (parent:Part {id: link.parent_id})
MERGE (child:Part {id: link.child_id})
MERGE (parent)-[r:HAS_CHILD {link_id: link.link_id}]->(child)
SET r.child_order = link.child_order,
    r.quantity = link.quantity,
    r.unit = link.unit,
    r.synced_at = link.synced_at
`, map[string]any{"links": linkRels}); err != nil {
				return nil, err
			} else if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(endedIDs) > 0 {
			if res, err := tx.Run(ctx, `
UNWIND $link_ids AS link_id
MATCH ()-[r:HAS_CHILD {link_id: link_id}]->()
SET r.ended_at = $ended_at
`, map[string]any{"link_ids": endedIDs, "ended_at": now}); err != nil {
				return nil, err
			} else if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.log.Info("projected BOM delta",
		"parts", len(partIDs),
		"links", len(linkRels),
		"ended_links", len(endedIDs))
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
