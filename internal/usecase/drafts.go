package usecase

// DraftStore holds unsent input text per session. It is not safe for
// concurrent use.
type DraftStore struct {
	drafts map[string]string
}

// NewDraftStore creates an empty DraftStore.
func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: map[string]string{}}
}

// Set stores text for sessionID; empty text removes the draft.
func (d *DraftStore) Set(sessionID, text string) {
	if text == "" {
		delete(d.drafts, sessionID)
		return
	}
	d.drafts[sessionID] = text
}

func (d *DraftStore) Get(sessionID string) string { return d.drafts[sessionID] }

func (d *DraftStore) Clear(sessionID string) { delete(d.drafts, sessionID) }

// All returns a copy of every draft.
func (d *DraftStore) All() map[string]string {
	out := make(map[string]string, len(d.drafts))
	for k, v := range d.drafts {
		out[k] = v
	}
	return out
}

// Restore merges persisted drafts; drafts already held win.
func (d *DraftStore) Restore(drafts map[string]string) {
	for k, v := range drafts {
		if _, ok := d.drafts[k]; !ok && v != "" {
			d.drafts[k] = v
		}
	}
}
