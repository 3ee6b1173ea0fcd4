package assembly

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

// occurrence is one placed instance of a component within a parent.
type occurrence struct {
	name      string
	transform Transform
}

// childGroup accumulates every occurrence of one distinct child component
// under a parent, in encounter order. rank is the first-encounter rank among
// the parent's distinct children.
type childGroup struct {
	part        *types.Part
	node        *AssemblyNode
	identity    Identity
	occurrences []occurrence
	rank        int

	// freshlyBuilt marks groups whose sub-graph was materialized during this
	// pass; the synchronizer must not recurse into them again.
	freshlyBuilt bool
}

func (g *childGroup) order() int { return 10 * (g.rank + 1) }

// passState carries the per-pass bookkeeping shared by builder and
// synchronizer: resolved references, the accumulated delta, and the set of
// documents already checked in (the check-in rule applies once per distinct
// child).
type passState struct {
	refs      *ResolvedRefs
	actor     string
	delta     *GraphDelta
	checkedIn map[uuid.UUID]bool
	now       time.Time
}

func newPassState(refs *ResolvedRefs, actor string, now time.Time) *passState {
	if refs == nil {
		refs = NewResolvedRefs()
	}
	return &passState{
		refs:      refs,
		actor:     actor,
		delta:     &GraphDelta{},
		checkedIn: map[uuid.UUID]bool{},
		now:       now,
	}
}

// Builder materializes a Part/Document/Link graph from an assembly tree with
// no prior state, deduplicating repeated identical sub-trees into
// multi-occurrence links.
type Builder struct {
	parts      repos.PartRepo
	links      repos.ParentChildLinkRepo
	extensions repos.LocationExtensionRepo
	store      DocumentStore
	resolver   *Resolver
	log        *logger.Logger
}

func NewBuilder(
	parts repos.PartRepo,
	links repos.ParentChildLinkRepo,
	extensions repos.LocationExtensionRepo,
	store DocumentStore,
	resolver *Resolver,
	baseLog *logger.Logger,
) *Builder {
	return &Builder{
		parts:      parts,
		links:      links,
		extensions: extensions,
		store:      store,
		resolver:   resolver,
		log:        baseLog.With("component", "GraphBuilder"),
	}
}

// Build materializes the whole tree, creating a Part for the root itself.
func (b *Builder) Build(dbc dbctx.Context, root *AssemblyNode, refs *ResolvedRefs, actor string) (*types.Part, *GraphDelta, error) {
	st := newPassState(refs, actor, time.Now().UTC())
	rootPart, err := b.createComponent(dbc, root, st)
	if err != nil {
		return nil, st.delta, err
	}
	if sig, ok := Signature(root); ok {
		b.resolver.Remember(sig, rootPart)
	}
	if err := b.buildChildren(dbc, rootPart, root, st); err != nil {
		return nil, st.delta, err
	}
	return rootPart, st.delta, nil
}

// BuildUnder materializes the tree's children below an existing parent Part.
// Precondition: the parent has no active children yet.
func (b *Builder) BuildUnder(dbc dbctx.Context, parent *types.Part, root *AssemblyNode, refs *ResolvedRefs, actor string) (*GraphDelta, error) {
	st := newPassState(refs, actor, time.Now().UTC())
	if err := b.buildChildren(dbc, parent, root, st); err != nil {
		return st.delta, err
	}
	return st.delta, nil
}

// buildChildren runs one level of the depth-first materialization: it groups
// the node's children into distinct components, creates Part+Document pairs
// for new ones (recursing into their sub-trees before any link of this parent
// is written), then persists one link per distinct child with one location
// extension per occurrence.
func (b *Builder) buildChildren(dbc dbctx.Context, parent *types.Part, node *AssemblyNode, st *passState) error {
	groups, err := b.collectGroups(dbc, node, st)
	if err != nil {
		return err
	}
	return b.persistLinks(dbc, parent, groups, st)
}

func (b *Builder) collectGroups(dbc dbctx.Context, node *AssemblyNode, st *passState) ([]*childGroup, error) {
	groups := make([]*childGroup, 0, len(node.Children))
	byPart := map[uuid.UUID]*childGroup{}

	for _, child := range node.Children {
		ident, err := b.resolver.Resolve(child, st.refs)
		if err != nil {
			return nil, err
		}

		switch ident.Kind {
		case IdentityNew:
			part, err := b.createComponent(dbc, child, st)
			if err != nil {
				return nil, err
			}
			b.resolver.Remember(ident.Signature, part)
			g := &childGroup{part: part, node: child, identity: ident, rank: len(groups), freshlyBuilt: true}
			g.occurrences = append(g.occurrences, occurrence{name: child.LocalName, transform: child.LocalTransform})
			groups = append(groups, g)
			byPart[part.ID] = g

			// Depth-first, so deeper repeats of this sub-tree are visible to
			// the structural cache before any sibling branch is visited.
			if err := b.buildChildren(dbc, part, child, st); err != nil {
				return nil, err
			}

		case IdentityStructural, IdentityExplicit:
			g := byPart[ident.Part.ID]
			if g == nil {
				g = &childGroup{part: ident.Part, node: child, identity: ident, rank: len(groups)}
				groups = append(groups, g)
				byPart[ident.Part.ID] = g
				if ident.Kind == IdentityExplicit {
					if err := b.applyCheckin(dbc, child, ident, st); err != nil {
						return nil, err
					}
				}
			} else if err := checkGroupConflict(g, child, ident); err != nil {
				return nil, err
			}
			g.occurrences = append(g.occurrences, occurrence{name: child.LocalName, transform: child.LocalTransform})
		}
	}
	return groups, nil
}

func (b *Builder) persistLinks(dbc dbctx.Context, parent *types.Part, groups []*childGroup, st *passState) error {
	for _, g := range groups {
		if err := b.createLink(dbc, parent, g, st); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) createLink(dbc dbctx.Context, parent *types.Part, g *childGroup, st *passState) error {
	link := &types.ParentChildLink{
		ID:        uuid.New(),
		ParentID:  parent.ID,
		ChildID:   g.part.ID,
		Order:     g.order(),
		Quantity:  len(g.occurrences),
		Unit:      "-",
		StartTime: st.now,
	}
	if _, err := b.links.Create(dbc, []*types.ParentChildLink{link}); err != nil {
		return &PersistenceError{Op: "create link", Err: err}
	}

	extensions := make([]*types.LocationExtension, 0, len(g.occurrences))
	for i, occ := range g.occurrences {
		extensions = append(extensions, &types.LocationExtension{
			ID:        uuid.New(),
			LinkID:    link.ID,
			Rank:      i + 1,
			Name:      occ.name,
			Transform: occ.transform.JSON(),
		})
	}
	if _, err := b.extensions.Create(dbc, extensions); err != nil {
		return &PersistenceError{Op: "create location extensions", Err: err}
	}
	st.delta.addLink(link.ID)
	return nil
}

// createComponent creates the Part+Document pair of one new distinct
// component, with its DocumentFile(s) at revision 1.
func (b *Builder) createComponent(dbc dbctx.Context, n *AssemblyNode, st *passState) (*types.Part, error) {
	doc, err := b.store.CreateComponentDocument(dbc, n.LocalName)
	if err != nil {
		return nil, err
	}
	st.delta.addDocument(doc.ID)

	if err := b.createPayloadFiles(dbc, doc.ID, n); err != nil {
		return nil, err
	}

	part := &types.Part{
		ID:                      uuid.New(),
		Reference:               componentReference("PART", uuid.New()),
		Type:                    "Part",
		Revision:                "a",
		Name:                    n.LocalName,
		DecompositionDocumentID: &doc.ID,
		LastModifiedAt:          st.now,
		LastModifiedBy:          st.actor,
	}
	if _, err := b.parts.Create(dbc, []*types.Part{part}); err != nil {
		return nil, &PersistenceError{Op: "create part", Err: err}
	}
	st.delta.addPart(part.ID)
	return part, nil
}

func (b *Builder) createPayloadFiles(dbc dbctx.Context, documentID uuid.UUID, n *AssemblyNode) error {
	type payloadFile struct {
		payload *Payload
		kind    string
		ext     string
	}
	files := []payloadFile{
		{payload: n.NativePayload, kind: types.FileKindNative, ext: ".prt"},
		{payload: n.StepPayload, kind: types.FileKindStep, ext: ".stp"},
	}
	for _, pf := range files {
		if pf.payload == nil {
			continue
		}
		if pf.payload.IsRef() {
			if _, err := b.store.CreateFileFrom(dbc, documentID, *pf.payload.FileID); err != nil {
				return err
			}
			continue
		}
		filename := safeFilename(n.LocalName) + pf.ext
		if _, err := b.store.CreateFile(dbc, documentID, pf.kind, filename, pf.payload.Content); err != nil {
			return err
		}
	}
	return nil
}

// applyCheckin implements the revision rule for one explicitly referenced
// child, at most once per document per pass. Payloads carrying raw content
// check that content in; reference payloads and bare document references
// re-check-in the current content (the pass itself is the check-in event).
// checkin=false means read-only participation: no bump at all.
func (b *Builder) applyCheckin(dbc dbctx.Context, n *AssemblyNode, ident Identity, st *passState) error {
	if ident.Document == nil {
		return nil
	}
	if st.checkedIn[ident.Document.ID] {
		return nil
	}
	st.checkedIn[ident.Document.ID] = true

	bumped := false
	targeted := map[uuid.UUID]bool{}
	kinded := []struct {
		payload *Payload
		kind    string
	}{
		{n.NativePayload, types.FileKindNative},
		{n.StepPayload, types.FileKindStep},
	}
	for _, kp := range kinded {
		p := kp.payload
		if p == nil || (p.FileID == nil && p.Content == nil) {
			continue
		}
		if !p.CheckinEnabled() {
			continue
		}
		var target *types.DocumentFile
		if p.FileID != nil {
			target = st.refs.Files[*p.FileID]
		} else {
			// Content without a file id targets the document's file of the
			// payload's kind.
			target = fileOfKind(st.refs.FilesByDocument[ident.Document.ID], kp.kind)
		}
		if target == nil {
			continue
		}
		targeted[target.ID] = true
		var err error
		if p.Content != nil {
			_, err = b.store.Checkin(dbc, target.ID, p.Content)
		} else {
			_, err = b.store.CheckinCurrent(dbc, target.ID)
		}
		if err != nil {
			return err
		}
		bumped = true
	}

	// A bare document reference with check-in enabled bumps every file of the
	// document that was not already targeted through a payload.
	if n.DocumentRef != nil && n.DocumentRef.CheckinEnabled() && len(targeted) == 0 {
		for _, f := range st.refs.FilesByDocument[ident.Document.ID] {
			if _, err := b.store.CheckinCurrent(dbc, f.ID); err != nil {
				return err
			}
			bumped = true
		}
	}

	if bumped {
		st.delta.addUpdatedDocument(ident.Document.ID)
	}
	return nil
}

func fileOfKind(files []*types.DocumentFile, kind string) *types.DocumentFile {
	for _, f := range files {
		if f.Kind == kind && !f.Deprecated {
			return f
		}
	}
	return nil
}

func checkGroupConflict(g *childGroup, n *AssemblyNode, ident Identity) error {
	if g.identity.Kind != IdentityExplicit || ident.Kind != IdentityExplicit {
		return nil
	}
	if g.identity.Document != nil && ident.Document != nil && g.identity.Document.ID != ident.Document.ID {
		return &AmbiguousIdentityError{
			ComponentName: n.LocalName,
			Reason:        "sibling occurrences reference the same part with different documents",
		}
	}
	if g.identity.Checkin != ident.Checkin {
		return &AmbiguousIdentityError{
			ComponentName: n.LocalName,
			Reason:        "sibling occurrences reference the same part with conflicting checkin flags",
		}
	}
	return nil
}

func componentReference(prefix string, id uuid.UUID) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}

func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "component"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		default:
			return r
		}
	}, name)
}
