package assembly

import (
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/partforge/partforge-backend/internal/data/repos"
	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

type IdentityKind int

const (
	// IdentityNew: no match; a new Part/Document pair must be created.
	IdentityNew IdentityKind = iota
	// IdentityStructural: the node's signature matches a branch already
	// materialized during this pass; it is a repeated occurrence.
	IdentityStructural
	// IdentityExplicit: the node references already-persisted entities.
	IdentityExplicit
)

// Identity is the resolver's verdict for one node.
type Identity struct {
	Kind     IdentityKind
	Part     *types.Part
	Document *types.Document
	Checkin  bool

	// Signature is set for nodes that are structurally comparable; the
	// builder uses it to register freshly created parts in the cache.
	Signature string
}

// ResolvedRefs is the batch-fetched view of every entity the input tree
// references. All lookups during the matching pass hit these maps, never the
// database, so the algorithm stays deterministic and unit-testable.
type ResolvedRefs struct {
	Parts           map[uuid.UUID]*types.Part
	Documents       map[uuid.UUID]*types.Document
	Files           map[uuid.UUID]*types.DocumentFile
	FilesByDocument map[uuid.UUID][]*types.DocumentFile
}

func NewResolvedRefs() *ResolvedRefs {
	return &ResolvedRefs{
		Parts:           map[uuid.UUID]*types.Part{},
		Documents:       map[uuid.UUID]*types.Document{},
		Files:           map[uuid.UUID]*types.DocumentFile{},
		FilesByDocument: map[uuid.UUID][]*types.DocumentFile{},
	}
}

// Resolver decides, per node, whether it denotes an existing persisted
// component or a new one. The signature cache is explicit per-resolver state,
// populated depth-first as new sub-trees are materialized; a fresh resolver is
// used for every pass so no state leaks across unrelated calls.
type Resolver struct {
	parts     repos.PartRepo
	documents repos.DocumentRepo
	files     repos.DocumentFileRepo
	log       *logger.Logger

	cache map[string]*types.Part
}

func NewResolver(parts repos.PartRepo, documents repos.DocumentRepo, files repos.DocumentFileRepo, baseLog *logger.Logger) *Resolver {
	return &Resolver{
		parts:     parts,
		documents: documents,
		files:     files,
		log:       baseLog.With("component", "IdentityResolver"),
		cache:     map[string]*types.Part{},
	}
}

// CollectReferences walks the tree and gathers every referenced part,
// document and file id.
func CollectReferences(root *AssemblyNode) (partIDs, documentIDs, fileIDs []uuid.UUID) {
	seenParts := map[uuid.UUID]bool{}
	seenDocs := map[uuid.UUID]bool{}
	seenFiles := map[uuid.UUID]bool{}

	var walk func(n *AssemblyNode)
	walk = func(n *AssemblyNode) {
		if n == nil {
			return
		}
		if n.PartRef != nil && !seenParts[n.PartRef.PartID] {
			seenParts[n.PartRef.PartID] = true
			partIDs = append(partIDs, n.PartRef.PartID)
		}
		if n.DocumentRef != nil && !seenDocs[n.DocumentRef.DocumentID] {
			seenDocs[n.DocumentRef.DocumentID] = true
			documentIDs = append(documentIDs, n.DocumentRef.DocumentID)
		}
		for _, p := range n.payloads() {
			if p.FileID != nil && !seenFiles[*p.FileID] {
				seenFiles[*p.FileID] = true
				fileIDs = append(fileIDs, *p.FileID)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return partIDs, documentIDs, fileIDs
}

// FetchReferences batch-fetches everything the tree references, concurrently.
// It must be called outside the write transaction; the matching pass then runs
// purely over the resolved values.
func (r *Resolver) FetchReferences(dbc dbctx.Context, root *AssemblyNode) (*ResolvedRefs, error) {
	partIDs, documentIDs, fileIDs := CollectReferences(root)
	refs := NewResolvedRefs()

	var (
		parts []*types.Part
		docs  []*types.Document
		files []*types.DocumentFile
	)

	g, ctx := errgroup.WithContext(dbc.Ctx)
	fetchCtx := dbctx.Context{Ctx: ctx}
	g.Go(func() error {
		var err error
		parts, err = r.parts.GetByIDs(fetchCtx, partIDs)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = r.documents.GetByIDs(fetchCtx, documentIDs)
		return err
	})
	g.Go(func() error {
		var err error
		files, err = r.files.GetByIDs(fetchCtx, fileIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &PersistenceError{Op: "resolve references", Err: err}
	}

	for _, p := range parts {
		refs.Parts[p.ID] = p
	}
	for _, d := range docs {
		refs.Documents[d.ID] = d
	}
	for _, f := range files {
		refs.Files[f.ID] = f
	}

	// Files of referenced documents, for the per-document check-in step.
	docFiles, err := r.files.GetByDocumentIDs(dbctx.Context{Ctx: dbc.Ctx}, documentIDs)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve document files", Err: err}
	}
	for _, f := range docFiles {
		refs.FilesByDocument[f.DocumentID] = append(refs.FilesByDocument[f.DocumentID], f)
		if _, ok := refs.Files[f.ID]; !ok {
			refs.Files[f.ID] = f
		}
	}

	if err := validateReferences(root, refs); err != nil {
		return nil, err
	}
	return refs, nil
}

func validateReferences(root *AssemblyNode, refs *ResolvedRefs) error {
	var walk func(n *AssemblyNode) error
	walk = func(n *AssemblyNode) error {
		if n == nil {
			return nil
		}
		if n.PartRef != nil {
			if _, ok := refs.Parts[n.PartRef.PartID]; !ok {
				return &AmbiguousIdentityError{ComponentName: n.LocalName, Reason: "references unknown part " + n.PartRef.PartID.String()}
			}
			if n.DocumentRef == nil {
				return &AmbiguousIdentityError{ComponentName: n.LocalName, Reason: "part reference without document reference"}
			}
		}
		if n.DocumentRef != nil {
			if _, ok := refs.Documents[n.DocumentRef.DocumentID]; !ok {
				return &AmbiguousIdentityError{ComponentName: n.LocalName, Reason: "references unknown document " + n.DocumentRef.DocumentID.String()}
			}
		}
		for _, p := range n.payloads() {
			if p.FileID != nil {
				if _, ok := refs.Files[*p.FileID]; !ok {
					return &AmbiguousIdentityError{ComponentName: n.LocalName, Reason: "references unknown document file " + p.FileID.String()}
				}
			}
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// Resolve decides the node's identity against the batch-fetched references and
// the per-pass structural cache. It performs no I/O.
func (r *Resolver) Resolve(n *AssemblyNode, refs *ResolvedRefs) (Identity, error) {
	if n.PartRef != nil {
		part := refs.Parts[n.PartRef.PartID]
		if part == nil {
			return Identity{}, &AmbiguousIdentityError{ComponentName: n.LocalName, Reason: "references unknown part"}
		}
		var doc *types.Document
		checkin := true
		if n.DocumentRef != nil {
			doc = refs.Documents[n.DocumentRef.DocumentID]
			checkin = n.DocumentRef.CheckinEnabled()
		}
		return Identity{Kind: IdentityExplicit, Part: part, Document: doc, Checkin: checkin}, nil
	}

	sig, comparable := Signature(n)
	if comparable {
		if part, ok := r.cache[sig]; ok {
			return Identity{Kind: IdentityStructural, Part: part, Signature: sig}, nil
		}
	}
	return Identity{Kind: IdentityNew, Signature: sig}, nil
}

// Remember registers a freshly materialized sub-tree in the structural cache.
// Non-comparable nodes (empty signature) are never cached.
func (r *Resolver) Remember(signature string, part *types.Part) {
	if signature == "" || part == nil {
		return
	}
	r.cache[signature] = part
}
