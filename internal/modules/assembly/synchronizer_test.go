package assembly

import (
	"testing"

	types "github.com/partforge/partforge-backend/internal/domain"
)

// buildInitial materializes a two-leaf graph under a fresh root part and
// returns the root plus the created child parts by name.
func buildInitial(t *testing.T, h *harness) (*types.Part, map[string]*types.Part) {
	t.Helper()
	root := seedPart(h, "ROOT")
	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{
			contentLeaf("LEFT", []byte("left")),
			contentLeaf("RIGHT", []byte("right")),
		},
	}
	if _, err := h.builder.BuildUnder(h.dbc, root, tree, NewResolvedRefs(), "alice"); err != nil {
		t.Fatalf("BuildUnder: %v", err)
	}

	byName := map[string]*types.Part{}
	for _, p := range h.state.parts {
		byName[p.Name] = p
	}
	return root, byName
}

// explicitRef builds an update-tree node that references an existing component
// without checking it in.
func explicitRef(p *types.Part, x float64) *AssemblyNode {
	return &AssemblyNode{
		LocalName:      p.Name,
		LocalTransform: translation(x),
		PartRef:        &PartRef{PartID: p.ID},
		DocumentRef:    &DocumentRef{DocumentID: *p.DecompositionDocumentID, Checkin: boolPtr(false)},
	}
}

func TestUpdate_IdenticalTreeIsNoOp(t *testing.T) {
	h := newHarness(t)
	root, parts := buildInitial(t, h)
	h.freshPass(t)

	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{
			explicitRef(parts["LEFT"], 0),
			explicitRef(parts["RIGHT"], 0),
		},
	}

	before := h.state.activeLinks(root.ID)
	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !delta.Empty() {
		t.Fatalf("identical tree must be a no-op, got %+v", delta)
	}

	after := h.state.activeLinks(root.ID)
	if len(after) != len(before) {
		t.Fatalf("active link count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("link %d replaced on a no-op update", i)
		}
	}
}

func TestUpdate_QuantityChangeReplacesLink(t *testing.T) {
	h := newHarness(t)
	root, parts := buildInitial(t, h)
	h.freshPass(t)

	oldLinks := h.state.activeLinks(root.ID)

	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{
			explicitRef(parts["LEFT"], 0),
			explicitRef(parts["LEFT"], 75),
			explicitRef(parts["RIGHT"], 0),
		},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.EndedLinkIDs) != 1 || len(delta.CreatedLinkIDs) != 1 {
		t.Fatalf("expected exactly one end+create pair, got %+v", delta)
	}

	after := h.state.activeLinks(root.ID)
	if len(after) != 2 {
		t.Fatalf("expected 2 active links, got %d", len(after))
	}
	left := after[0]
	if left.ChildID != parts["LEFT"].ID || left.Quantity != 2 {
		t.Fatalf("expected LEFT with quantity 2, got %+v", left)
	}
	if left.ID == oldLinks[0].ID {
		t.Fatalf("quantity change must replace the link, not mutate it")
	}
	if oldLinks[0].EndTime == nil {
		t.Fatalf("replaced link must be ended")
	}
	exts := h.state.extensions[left.ID]
	if len(exts) != 2 {
		t.Fatalf("new link must own one extension per occurrence, got %d", len(exts))
	}

	// RIGHT was untouched.
	if after[1].ID != oldLinks[1].ID {
		t.Fatalf("unchanged sibling must keep its link")
	}
}

func TestUpdate_RemovalEndsLinkKeepsPart(t *testing.T) {
	h := newHarness(t)
	root, parts := buildInitial(t, h)
	h.freshPass(t)

	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children:  []*AssemblyNode{explicitRef(parts["LEFT"], 0)},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.EndedLinkIDs) != 1 {
		t.Fatalf("expected one ended link, got %v", delta.EndedLinkIDs)
	}
	if len(delta.CreatedLinkIDs) != 0 {
		t.Fatalf("no new links expected, got %v", delta.CreatedLinkIDs)
	}

	after := h.state.activeLinks(root.ID)
	if len(after) != 1 || after[0].ChildID != parts["LEFT"].ID {
		t.Fatalf("expected only LEFT to stay active")
	}

	// The removed child's part and document survive.
	if h.state.parts[parts["RIGHT"].ID] == nil {
		t.Fatalf("removed child's part must not be deleted")
	}
	if h.state.documents[*parts["RIGHT"].DecompositionDocumentID] == nil {
		t.Fatalf("removed child's document must not be deleted")
	}
}

func TestUpdate_MoveReplacesLinkPreservesIdentity(t *testing.T) {
	h := newHarness(t)
	root, parts := buildInitial(t, h)
	h.freshPass(t)

	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{
			explicitRef(parts["LEFT"], 123.5),
			explicitRef(parts["RIGHT"], 0),
		},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.EndedLinkIDs) != 1 || len(delta.CreatedLinkIDs) != 1 {
		t.Fatalf("expected one end+create pair, got %+v", delta)
	}
	if len(delta.CreatedPartIDs) != 0 {
		t.Fatalf("a moved occurrence must not create parts: %v", delta.CreatedPartIDs)
	}

	after := h.state.activeLinks(root.ID)
	if after[0].ChildID != parts["LEFT"].ID {
		t.Fatalf("moved occurrence must keep its part identity")
	}
	exts := h.state.extensions[after[0].ID]
	tr, err := ParseTransform(exts[0].Transform)
	if err != nil {
		t.Fatalf("parse transform: %v", err)
	}
	if tr[3] != 123.5 {
		t.Fatalf("new placement lost: %v", tr[3])
	}
}

func TestUpdate_AppendsNewChild(t *testing.T) {
	h := newHarness(t)
	root, parts := buildInitial(t, h)
	h.freshPass(t)

	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{
			explicitRef(parts["LEFT"], 0),
			explicitRef(parts["RIGHT"], 0),
			contentLeaf("ROD", []byte("rod")),
		},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.CreatedPartIDs) != 1 {
		t.Fatalf("expected one new part, got %v", delta.CreatedPartIDs)
	}
	if len(delta.EndedLinkIDs) != 0 {
		t.Fatalf("existing links must stay untouched, got %v", delta.EndedLinkIDs)
	}

	after := h.state.activeLinks(root.ID)
	if len(after) != 3 {
		t.Fatalf("expected 3 active links, got %d", len(after))
	}
	appended := after[2]
	if appended.Order != 30 {
		t.Fatalf("appended child must get the next order slot, got %d", appended.Order)
	}
	if h.state.parts[appended.ChildID].Name != "ROD" {
		t.Fatalf("unexpected appended child: %q", h.state.parts[appended.ChildID].Name)
	}
}

func TestUpdate_RecursesIntoExplicitSubAssemblies(t *testing.T) {
	h := newHarness(t)

	// First pass: ROOT -> BRACKET_ASM -> {BASE, ARM}.
	root := seedPart(h, "ROOT")
	firstTree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{{
			LocalName:      "BRACKET_ASM",
			LocalTransform: IdentityTransform(),
			Children: []*AssemblyNode{
				contentLeaf("BASE", []byte("base")),
				contentLeaf("ARM", []byte("arm")),
			},
		}},
	}
	if _, err := h.builder.BuildUnder(h.dbc, root, firstTree, NewResolvedRefs(), "alice"); err != nil {
		t.Fatalf("BuildUnder: %v", err)
	}

	byName := map[string]*types.Part{}
	for _, p := range h.state.parts {
		byName[p.Name] = p
	}
	h.freshPass(t)

	// Update pass drops ARM from the bracket.
	bracket := explicitRef(byName["BRACKET_ASM"], 0)
	bracket.Children = []*AssemblyNode{explicitRef(byName["BASE"], 0)}
	tree := &AssemblyNode{LocalName: "ROOT", Children: []*AssemblyNode{bracket}}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.EndedLinkIDs) != 1 {
		t.Fatalf("expected the ARM edge ended, got %v", delta.EndedLinkIDs)
	}
	bracketLinks := h.state.activeLinks(byName["BRACKET_ASM"].ID)
	if len(bracketLinks) != 1 || bracketLinks[0].ChildID != byName["BASE"].ID {
		t.Fatalf("expected only BASE under the bracket")
	}
	if h.state.parts[byName["ARM"].ID] == nil {
		t.Fatalf("ARM part must survive its removal")
	}
}

func TestUpdate_LeafReferenceDoesNotRecurse(t *testing.T) {
	h := newHarness(t)

	root := seedPart(h, "ROOT")
	firstTree := &AssemblyNode{
		LocalName: "ROOT",
		Children: []*AssemblyNode{{
			LocalName:      "SUB_ASM",
			LocalTransform: IdentityTransform(),
			Children:       []*AssemblyNode{contentLeaf("PIN", []byte("pin"))},
		}},
	}
	if _, err := h.builder.BuildUnder(h.dbc, root, firstTree, NewResolvedRefs(), "alice"); err != nil {
		t.Fatalf("BuildUnder: %v", err)
	}
	byName := map[string]*types.Part{}
	for _, p := range h.state.parts {
		byName[p.Name] = p
	}
	h.freshPass(t)

	// The sub-assembly participates as a leaf: its own children are not
	// spelled out, so its sub-graph must stay untouched.
	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children:  []*AssemblyNode{explicitRef(byName["SUB_ASM"], 0)},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !delta.Empty() {
		t.Fatalf("leaf participation must be a no-op, got %+v", delta)
	}
	subLinks := h.state.activeLinks(byName["SUB_ASM"].ID)
	if len(subLinks) != 1 {
		t.Fatalf("sub-assembly graph must stay intact, got %d links", len(subLinks))
	}
}

func TestUpdate_StructuralRepeatWithinUpdateTree(t *testing.T) {
	h := newHarness(t)
	root := seedPart(h, "ROOT")
	h.freshPass(t)

	strut := func(x float64) *AssemblyNode { return translated(contentLeaf("STRUT", []byte("strut")), x) }
	tree := &AssemblyNode{
		LocalName: "ROOT",
		Children:  []*AssemblyNode{strut(0), strut(10), strut(20), strut(30)},
	}

	refs := h.fetchRefs(t, tree)
	delta, err := h.sync.Update(h.dbc, root, tree, refs, "alice")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(delta.CreatedPartIDs) != 1 {
		t.Fatalf("four identical occurrences must yield one part, got %d", len(delta.CreatedPartIDs))
	}
	links := h.state.activeLinks(root.ID)
	if len(links) != 1 || links[0].Quantity != 4 {
		t.Fatalf("expected one link with quantity 4, got %+v", links)
	}
}
