package assembly

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

// memState is a shared in-memory backing store for the fake repos and the fake
// document store, so one scenario sees a consistent graph across them.
type memState struct {
	parts      map[uuid.UUID]*types.Part
	links      map[uuid.UUID]*types.ParentChildLink
	extensions map[uuid.UUID][]*types.LocationExtension
	documents  map[uuid.UUID]*types.Document
	files      map[uuid.UUID]*types.DocumentFile
	objects    map[string][]byte
}

func newMemState() *memState {
	return &memState{
		parts:      map[uuid.UUID]*types.Part{},
		links:      map[uuid.UUID]*types.ParentChildLink{},
		extensions: map[uuid.UUID][]*types.LocationExtension{},
		documents:  map[uuid.UUID]*types.Document{},
		files:      map[uuid.UUID]*types.DocumentFile{},
		objects:    map[string][]byte{},
	}
}

func (s *memState) activeLinks(parentID uuid.UUID) []*types.ParentChildLink {
	var out []*types.ParentChildLink
	for _, l := range s.links {
		if l.ParentID == parentID && l.EndTime == nil {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

type memPartRepo struct{ s *memState }

func (r *memPartRepo) Create(_ dbctx.Context, parts []*types.Part) ([]*types.Part, error) {
	for _, p := range parts {
		r.s.parts[p.ID] = p
	}
	return parts, nil
}

func (r *memPartRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Part, error) {
	return r.s.parts[id], nil
}

func (r *memPartRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Part, error) {
	var out []*types.Part
	for _, id := range ids {
		if p, ok := r.s.parts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPartRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, fields map[string]interface{}) error {
	return nil
}

func (r *memPartRepo) TouchLastModified(_ dbctx.Context, id uuid.UUID, actor string, at time.Time) error {
	if p, ok := r.s.parts[id]; ok {
		p.LastModifiedAt = at
		p.LastModifiedBy = actor
	}
	return nil
}

func (r *memPartRepo) DeleteByIDs(_ dbctx.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.s.parts, id)
	}
	return nil
}

type memLinkRepo struct{ s *memState }

func (r *memLinkRepo) Create(_ dbctx.Context, links []*types.ParentChildLink) ([]*types.ParentChildLink, error) {
	for _, l := range links {
		r.s.links[l.ID] = l
	}
	return links, nil
}

func (r *memLinkRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.ParentChildLink, error) {
	var out []*types.ParentChildLink
	for _, id := range ids {
		if l, ok := r.s.links[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memLinkRepo) GetActiveByParentID(_ dbctx.Context, parentID uuid.UUID) ([]*types.ParentChildLink, error) {
	return r.s.activeLinks(parentID), nil
}

func (r *memLinkRepo) GetActiveByParentIDs(dbc dbctx.Context, parentIDs []uuid.UUID) ([]*types.ParentChildLink, error) {
	var out []*types.ParentChildLink
	for _, id := range parentIDs {
		links, _ := r.GetActiveByParentID(dbc, id)
		out = append(out, links...)
	}
	return out, nil
}

func (r *memLinkRepo) EndByIDs(_ dbctx.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		if l, ok := r.s.links[id]; ok && l.EndTime == nil {
			t := at
			l.EndTime = &t
		}
	}
	return nil
}

type memExtensionRepo struct{ s *memState }

func (r *memExtensionRepo) Create(_ dbctx.Context, extensions []*types.LocationExtension) ([]*types.LocationExtension, error) {
	for _, e := range extensions {
		r.s.extensions[e.LinkID] = append(r.s.extensions[e.LinkID], e)
	}
	return extensions, nil
}

func (r *memExtensionRepo) GetByLinkID(_ dbctx.Context, linkID uuid.UUID) ([]*types.LocationExtension, error) {
	rows := append([]*types.LocationExtension{}, r.s.extensions[linkID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	return rows, nil
}

func (r *memExtensionRepo) GetByLinkIDs(dbc dbctx.Context, linkIDs []uuid.UUID) ([]*types.LocationExtension, error) {
	var out []*types.LocationExtension
	for _, id := range linkIDs {
		rows, _ := r.GetByLinkID(dbc, id)
		out = append(out, rows...)
	}
	return out, nil
}

type memDocumentRepo struct{ s *memState }

func (r *memDocumentRepo) Create(_ dbctx.Context, documents []*types.Document) ([]*types.Document, error) {
	for _, d := range documents {
		r.s.documents[d.ID] = d
	}
	return documents, nil
}

func (r *memDocumentRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Document, error) {
	return r.s.documents[id], nil
}

func (r *memDocumentRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	for _, id := range ids {
		if d, ok := r.s.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memDocumentRepo) ExistsByIdentity(_ dbctx.Context, reference, docType, revision string) (bool, error) {
	for _, d := range r.s.documents {
		if d.Reference == reference && d.Type == docType && d.Revision == revision {
			return true, nil
		}
	}
	return false, nil
}

func (r *memDocumentRepo) DeleteByIDs(_ dbctx.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.s.documents, id)
	}
	return nil
}

type memFileRepo struct{ s *memState }

func (r *memFileRepo) Create(_ dbctx.Context, files []*types.DocumentFile) ([]*types.DocumentFile, error) {
	for _, f := range files {
		r.s.files[f.ID] = f
	}
	return files, nil
}

func (r *memFileRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.DocumentFile, error) {
	return r.s.files[id], nil
}

func (r *memFileRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.DocumentFile, error) {
	var out []*types.DocumentFile
	for _, id := range ids {
		if f, ok := r.s.files[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFileRepo) GetByDocumentIDs(_ dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentFile, error) {
	var out []*types.DocumentFile
	for _, docID := range documentIDs {
		for _, f := range r.s.files {
			if f.DocumentID == docID {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (r *memFileRepo) Checkin(_ dbctx.Context, fileID uuid.UUID, storageKey string, size int64) (*types.DocumentFile, error) {
	f, ok := r.s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}
	f.Revision++
	f.StorageKey = storageKey
	f.Size = size
	return f, nil
}

func (r *memFileRepo) SetLocked(_ dbctx.Context, fileID uuid.UUID, locked bool, locker string) error {
	if f, ok := r.s.files[fileID]; ok {
		f.Locked = locked
		f.Locker = locker
	}
	return nil
}

func (r *memFileRepo) SetDeprecated(_ dbctx.Context, fileID uuid.UUID, deprecated bool) error {
	if f, ok := r.s.files[fileID]; ok {
		f.Deprecated = deprecated
	}
	return nil
}

func (r *memFileRepo) DeleteByIDs(_ dbctx.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.s.files, id)
	}
	return nil
}

// memStore implements DocumentStore over memState with the same semantics as
// the real vault-backed service: revision 1 on create, +1 per check-in, lock
// conflicts reported.
type memStore struct{ s *memState }

func (m *memStore) CreateComponentDocument(_ dbctx.Context, name string) (*types.Document, error) {
	doc := &types.Document{
		ID:        uuid.New(),
		Reference: "DOC-" + uuid.New().String()[:8],
		Type:      "Document3D",
		Revision:  "a",
		Name:      name,
	}
	m.s.documents[doc.ID] = doc
	return doc, nil
}

func (m *memStore) CreateFile(_ dbctx.Context, documentID uuid.UUID, kind, filename string, content []byte) (*types.DocumentFile, error) {
	f := &types.DocumentFile{
		ID:         uuid.New(),
		DocumentID: documentID,
		Filename:   filename,
		Kind:       kind,
		Size:       int64(len(content)),
		StorageKey: fmt.Sprintf("mem/%s/r1", filename),
		Revision:   1,
	}
	m.s.files[f.ID] = f
	m.s.objects[f.StorageKey] = content
	return f, nil
}

func (m *memStore) CreateFileFrom(_ dbctx.Context, documentID uuid.UUID, sourceFileID uuid.UUID) (*types.DocumentFile, error) {
	src, ok := m.s.files[sourceFileID]
	if !ok {
		return nil, fmt.Errorf("source file not found: %s", sourceFileID)
	}
	f := &types.DocumentFile{
		ID:         uuid.New(),
		DocumentID: documentID,
		Filename:   src.Filename,
		Kind:       src.Kind,
		Size:       src.Size,
		StorageKey: src.StorageKey,
		Revision:   1,
	}
	m.s.files[f.ID] = f
	return f, nil
}

func (m *memStore) Checkin(_ dbctx.Context, fileID uuid.UUID, content []byte) (*types.DocumentFile, error) {
	f, ok := m.s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}
	if f.Locked {
		return nil, &LockConflictError{FileID: fileID, Locker: f.Locker}
	}
	f.Revision++
	f.Size = int64(len(content))
	f.StorageKey = fmt.Sprintf("mem/%s/r%d", f.Filename, f.Revision)
	m.s.objects[f.StorageKey] = content
	return f, nil
}

func (m *memStore) CheckinCurrent(_ dbctx.Context, fileID uuid.UUID) (*types.DocumentFile, error) {
	f, ok := m.s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}
	if f.Locked {
		return nil, &LockConflictError{FileID: fileID, Locker: f.Locker}
	}
	f.Revision++
	return f, nil
}

// harness bundles one scenario's engine components over a fresh memState.
type harness struct {
	state    *memState
	resolver *Resolver
	builder  *Builder
	sync     *Synchronizer
	parts    *memPartRepo
	files    *memFileRepo
	dbc      dbctx.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	state := newMemState()
	parts := &memPartRepo{s: state}
	links := &memLinkRepo{s: state}
	extensions := &memExtensionRepo{s: state}
	documents := &memDocumentRepo{s: state}
	files := &memFileRepo{s: state}
	store := &memStore{s: state}

	resolver := NewResolver(parts, documents, files, log)
	builder := NewBuilder(parts, links, extensions, store, resolver, log)
	sync := NewSynchronizer(links, extensions, builder, log)

	return &harness{
		state:    state,
		resolver: resolver,
		builder:  builder,
		sync:     sync,
		parts:    parts,
		files:    files,
		dbc:      dbctx.Context{Ctx: context.Background()},
	}
}

// freshPass re-creates the resolver-dependent components, simulating a new
// engine invocation with an empty structural cache.
func (h *harness) freshPass(t *testing.T) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	links := &memLinkRepo{s: h.state}
	extensions := &memExtensionRepo{s: h.state}
	documents := &memDocumentRepo{s: h.state}
	store := &memStore{s: h.state}

	h.resolver = NewResolver(h.parts, documents, h.files, log)
	h.builder = NewBuilder(h.parts, links, extensions, store, h.resolver, log)
	h.sync = NewSynchronizer(links, extensions, h.builder, log)
}

func (h *harness) fetchRefs(t *testing.T, root *AssemblyNode) *ResolvedRefs {
	t.Helper()
	refs, err := h.resolver.FetchReferences(h.dbc, root)
	if err != nil {
		t.Fatalf("FetchReferences: %v", err)
	}
	return refs
}

func contentLeaf(name string, content []byte) *AssemblyNode {
	return &AssemblyNode{
		LocalName:      name,
		LocalTransform: IdentityTransform(),
		NativePayload:  &Payload{Content: content},
	}
}

func translated(n *AssemblyNode, x float64) *AssemblyNode {
	out := *n
	tr := IdentityTransform()
	tr[3] = x
	out.LocalTransform = tr
	return &out
}

func boolPtr(b bool) *bool { return &b }
