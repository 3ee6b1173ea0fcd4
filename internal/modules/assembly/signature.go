package assembly

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signature computes the structural signature of a node: a recursive hash of
// local name, payload identity and children signatures, in order. Transforms
// are excluded: different placements of the same component are occurrences of
// one Part, not distinct components.
//
// The second return is false when the node (or any descendant) has no
// structural identity: a leaf with no children and no payload never matches
// anything, so genuinely distinct empty placeholders are never merged.
func Signature(n *AssemblyNode) (string, bool) {
	if n == nil {
		return "", false
	}

	payloadIDs := make([]string, 0, 2)
	for _, p := range n.payloads() {
		payloadIDs = append(payloadIDs, payloadIdentity(p))
	}
	if n.DocumentRef != nil {
		payloadIDs = append(payloadIDs, "doc:"+n.DocumentRef.DocumentID.String())
	}
	if n.PartRef != nil {
		payloadIDs = append(payloadIDs, "part:"+n.PartRef.PartID.String())
	}

	if len(n.Children) == 0 && len(payloadIDs) == 0 {
		return "", false
	}

	h := sha256.New()
	fmt.Fprintf(h, "name:%s\x00", n.LocalName)
	for _, id := range payloadIDs {
		fmt.Fprintf(h, "payload:%s\x00", id)
	}
	for _, child := range n.Children {
		childSig, ok := Signature(child)
		if !ok {
			return "", false
		}
		fmt.Fprintf(h, "child:%s\x00", childSig)
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func payloadIdentity(p *Payload) string {
	if p == nil {
		return ""
	}
	if p.FileID != nil {
		return "file:" + p.FileID.String()
	}
	sum := sha256.Sum256(p.Content)
	return "content:" + hex.EncodeToString(sum[:])
}
