package assembly

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Transform is a row-major 3x4 affine matrix (12 floats); the last row is
// implicitly 0 0 0 1.
type Transform [12]float64

func IdentityTransform() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

func (t Transform) JSON() datatypes.JSON {
	raw, _ := json.Marshal(t[:])
	return datatypes.JSON(raw)
}

func ParseTransform(raw datatypes.JSON) (Transform, error) {
	var vals []float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return Transform{}, fmt.Errorf("parse transform: %w", err)
	}
	if len(vals) != 12 {
		return Transform{}, fmt.Errorf("parse transform: expected 12 floats, got %d", len(vals))
	}
	var t Transform
	copy(t[:], vals)
	return t, nil
}

// Payload is either raw binary content or a reference to an already-persisted
// DocumentFile. Checkin defaults to true when the payload is a reference.
type Payload struct {
	Content []byte     `json:"content,omitempty"`
	FileID  *uuid.UUID `json:"document_file_id,omitempty"`
	Checkin *bool      `json:"checkin,omitempty"`
}

func (p *Payload) IsRef() bool { return p != nil && p.FileID != nil }

func (p *Payload) CheckinEnabled() bool {
	if p == nil || p.Checkin == nil {
		return true
	}
	return *p.Checkin
}

// PartRef points a node at an already-persisted Part.
type PartRef struct {
	PartID uuid.UUID `json:"part_id"`
}

// DocumentRef points a node at an already-persisted Document. Checkin defaults
// to true.
type DocumentRef struct {
	DocumentID uuid.UUID `json:"document_id"`
	Checkin    *bool     `json:"checkin,omitempty"`
}

func (r *DocumentRef) CheckinEnabled() bool {
	if r == nil || r.Checkin == nil {
		return true
	}
	return *r.Checkin
}

// AssemblyNode is one node of a parsed CAD assembly tree: the sole ingestion
// format of the synchronization engine. It is ephemeral input and is never
// persisted itself.
type AssemblyNode struct {
	LocalName      string    `json:"local_name"`
	LocalTransform Transform `json:"local_transform"`

	Children []*AssemblyNode `json:"children,omitempty"`

	NativePayload *Payload `json:"native_payload,omitempty"`
	StepPayload   *Payload `json:"step_payload,omitempty"`

	PartRef     *PartRef     `json:"part_ref,omitempty"`
	DocumentRef *DocumentRef `json:"document_ref,omitempty"`
}

// IsAssemblyOnly reports whether the node carries no payload at all.
func (n *AssemblyNode) IsAssemblyOnly() bool {
	return n.NativePayload == nil && n.StepPayload == nil
}

func (n *AssemblyNode) payloads() []*Payload {
	out := make([]*Payload, 0, 2)
	if n.NativePayload != nil {
		out = append(out, n.NativePayload)
	}
	if n.StepPayload != nil {
		out = append(out, n.StepPayload)
	}
	return out
}
