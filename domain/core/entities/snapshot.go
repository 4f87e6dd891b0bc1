package entities

import "sort"

// Snapshot is an immutable view of one user's memories ordered by
// timestamp, newest first. Equal timestamps keep arrival order.
type Snapshot struct {
	memories []Memory
	sequence uint64
}

// NewSnapshot copies memories and orders the copy. The caller's slice is
// never retained.
func NewSnapshot(memories []Memory) Snapshot {
	ordered := make([]Memory, len(memories))
	copy(ordered, memories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp > ordered[j].Timestamp
	})
	return Snapshot{memories: ordered}
}

// WithSequence stamps the snapshot with its publication number.
func (s Snapshot) WithSequence(seq uint64) Snapshot {
	s.sequence = seq
	return s
}

// Sequence is the publication number assigned by the store, starting at 1.
func (s Snapshot) Sequence() uint64 {
	return s.sequence
}

func (s Snapshot) Len() int {
	return len(s.memories)
}

func (s Snapshot) IsEmpty() bool {
	return len(s.memories) == 0
}

// At returns the i-th memory in display order.
func (s Snapshot) At(i int) Memory {
	return s.memories[i]
}

// Memories returns a copy of the ordered memories.
func (s Snapshot) Memories() []Memory {
	out := make([]Memory, len(s.memories))
	copy(out, s.memories)
	return out
}

// Each calls fn for every memory in order until fn returns false.
func (s Snapshot) Each(fn func(Memory) bool) {
	for _, m := range s.memories {
		if !fn(m) {
			return
		}
	}
}

// Find looks a memory up by id.
func (s Snapshot) Find(id string) (Memory, bool) {
	for _, m := range s.memories {
		if m.ID == id {
			return m, true
		}
	}
	return Memory{}, false
}
