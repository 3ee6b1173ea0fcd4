package assembly

import "github.com/google/uuid"

// GraphDelta lists what a build/update pass created, updated and ended. It is
// consumed by the external re-indexing job and by the web layer to render the
// updated BOM page.
type GraphDelta struct {
	CreatedPartIDs     []uuid.UUID `json:"created_part_ids,omitempty"`
	CreatedDocumentIDs []uuid.UUID `json:"created_document_ids,omitempty"`
	UpdatedDocumentIDs []uuid.UUID `json:"updated_document_ids,omitempty"`
	CreatedLinkIDs     []uuid.UUID `json:"created_link_ids,omitempty"`
	EndedLinkIDs       []uuid.UUID `json:"ended_link_ids,omitempty"`
}

func (d *GraphDelta) Empty() bool {
	return d == nil ||
		(len(d.CreatedPartIDs) == 0 &&
			len(d.CreatedDocumentIDs) == 0 &&
			len(d.UpdatedDocumentIDs) == 0 &&
			len(d.CreatedLinkIDs) == 0 &&
			len(d.EndedLinkIDs) == 0)
}

func (d *GraphDelta) addPart(id uuid.UUID)     { d.CreatedPartIDs = append(d.CreatedPartIDs, id) }
func (d *GraphDelta) addDocument(id uuid.UUID) { d.CreatedDocumentIDs = append(d.CreatedDocumentIDs, id) }
func (d *GraphDelta) addLink(id uuid.UUID)     { d.CreatedLinkIDs = append(d.CreatedLinkIDs, id) }
func (d *GraphDelta) addEndedLink(id uuid.UUID) {
	d.EndedLinkIDs = append(d.EndedLinkIDs, id)
}

func (d *GraphDelta) addUpdatedDocument(id uuid.UUID) {
	for _, existing := range d.UpdatedDocumentIDs {
		if existing == id {
			return
		}
	}
	d.UpdatedDocumentIDs = append(d.UpdatedDocumentIDs, id)
}
