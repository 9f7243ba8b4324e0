package refdata

import "sync/atomic"

type snapshot struct {
	rd   *ReferenceData
	hash string
}

// Holder publishes the current ReferenceData snapshot.
// Readers call Load once per verification and keep that pointer; a reload
// swaps in a whole new snapshot, so no reader ever sees a partial update.
type Holder struct {
	current atomic.Pointer[snapshot]
}

// NewHolder creates a Holder publishing rd.
func NewHolder(rd *ReferenceData, hash string) *Holder {
	h := &Holder{}
	h.Swap(rd, hash)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *ReferenceData {
	rd, _ := h.Snapshot()
	return rd
}

// Hash returns the hash of the file the current snapshot was loaded from.
func (h *Holder) Hash() string {
	_, hash := h.Snapshot()
	return hash
}

// Snapshot returns the current data together with its file hash.
func (h *Holder) Snapshot() (*ReferenceData, string) {
	s := h.current.Load()
	if s == nil {
		return nil, ""
	}
	return s.rd, s.hash
}

// Swap publishes rd and returns the previous snapshot.
func (h *Holder) Swap(rd *ReferenceData, hash string) *ReferenceData {
	old := h.current.Swap(&snapshot{rd: rd, hash: hash})
	if old == nil {
		return nil
	}
	return old.rd
}
