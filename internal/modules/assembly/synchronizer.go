package assembly

import (
	"time"

	"github.com/google/uuid"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

// Synchronizer reconciles an assembly tree against an already-materialized
// sub-graph: matched parts and documents are reused, new components are
// delegated to the builder, stale links are ended, and document revisions are
// bumped per the check-in rule. A link is never mutated in place; every change
// is an end+create pair, which keeps the time-ranged history auditable.
type Synchronizer struct {
	links      repos.ParentChildLinkRepo
	extensions repos.LocationExtensionRepo
	builder    *Builder
	log        *logger.Logger
}

func NewSynchronizer(
	links repos.ParentChildLinkRepo,
	extensions repos.LocationExtensionRepo,
	builder *Builder,
	baseLog *logger.Logger,
) *Synchronizer {
	return &Synchronizer{
		links:      links,
		extensions: extensions,
		builder:    builder,
		log:        baseLog.With("component", "GraphSynchronizer"),
	}
}

// Update makes rootPart's sub-graph reflect the tree exactly: active links
// correspond 1:1 with the tree's distinct children by identity, not position.
func (s *Synchronizer) Update(dbc dbctx.Context, rootPart *types.Part, root *AssemblyNode, refs *ResolvedRefs, actor string) (*GraphDelta, error) {
	st := newPassState(refs, actor, time.Now().UTC())
	if err := s.syncChildren(dbc, rootPart, root, st); err != nil {
		return st.delta, err
	}
	return st.delta, nil
}

func (s *Synchronizer) syncChildren(dbc dbctx.Context, parent *types.Part, node *AssemblyNode, st *passState) error {
	// Resolving the children may build brand-new sub-trees (the builder owns
	// that path) and applies the check-in rule for explicit references.
	groups, err := s.builder.collectGroups(dbc, node, st)
	if err != nil {
		return err
	}

	active, err := s.links.GetActiveByParentID(dbc, parent.ID)
	if err != nil {
		return &PersistenceError{Op: "load active links", Err: err}
	}
	activeByChild := make(map[uuid.UUID]*types.ParentChildLink, len(active))
	linkIDs := make([]uuid.UUID, 0, len(active))
	for _, l := range active {
		activeByChild[l.ChildID] = l
		linkIDs = append(linkIDs, l.ID)
	}
	extensionsByLink, err := s.loadExtensions(dbc, linkIDs)
	if err != nil {
		return err
	}

	desired := make(map[uuid.UUID]bool, len(groups))
	for _, g := range groups {
		desired[g.part.ID] = true
		existing := activeByChild[g.part.ID]
		if existing != nil && linkMatches(existing, extensionsByLink[existing.ID], g) {
			continue
		}
		if existing != nil {
			if err := s.endLink(dbc, existing.ID, st); err != nil {
				return err
			}
		}
		if err := s.builder.createLink(dbc, parent, g, st); err != nil {
			return err
		}
	}

	// A child present in the old graph but absent from the new tree keeps its
	// part and documents; only this parent's edge to it ends.
	for _, l := range active {
		if desired[l.ChildID] {
			continue
		}
		if err := s.endLink(dbc, l.ID, st); err != nil {
			return err
		}
	}

	for _, g := range groups {
		if g.freshlyBuilt {
			// The builder already materialized this sub-graph bottom-up.
			continue
		}
		if g.identity.Kind == IdentityStructural {
			continue
		}
		// A reused child listed as a leaf participates as-is; only nodes that
		// spell out children are reconciled one level deeper.
		if len(g.node.Children) == 0 {
			continue
		}
		if err := s.syncChildren(dbc, g.part, g.node, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) endLink(dbc dbctx.Context, linkID uuid.UUID, st *passState) error {
	if err := s.links.EndByIDs(dbc, []uuid.UUID{linkID}, st.now); err != nil {
		return &PersistenceError{Op: "end link", Err: err}
	}
	st.delta.addEndedLink(linkID)
	return nil
}

func (s *Synchronizer) loadExtensions(dbc dbctx.Context, linkIDs []uuid.UUID) (map[uuid.UUID][]*types.LocationExtension, error) {
	rows, err := s.extensions.GetByLinkIDs(dbc, linkIDs)
	if err != nil {
		return nil, &PersistenceError{Op: "load location extensions", Err: err}
	}
	out := make(map[uuid.UUID][]*types.LocationExtension)
	for _, row := range rows {
		out[row.LinkID] = append(out[row.LinkID], row)
	}
	return out, nil
}

// linkMatches reports whether an active link already reflects the desired
// group exactly: same order, same quantity and an identical occurrence list
// (name and transform, in encounter order). Anything else forces an
// end+create replacement.
func linkMatches(link *types.ParentChildLink, extensions []*types.LocationExtension, g *childGroup) bool {
	if link.Order != g.order() || link.Quantity != len(g.occurrences) {
		return false
	}
	if len(extensions) != len(g.occurrences) {
		return false
	}
	for i, ext := range extensions {
		occ := g.occurrences[i]
		if ext.Name != occ.name {
			return false
		}
		transform, err := ParseTransform(ext.Transform)
		if err != nil || transform != occ.transform {
			return false
		}
	}
	return true
}
