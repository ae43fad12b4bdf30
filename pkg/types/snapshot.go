package types

import "sort"

// RunSnapshot is the sorted set of run identifiers observed at one point in
// time. The zero value is an empty snapshot.
type RunSnapshot struct {
	ids []RunID
}

// NewRunSnapshot sorts and de-duplicates ids. The input slice is not retained.
func NewRunSnapshot(ids []RunID) RunSnapshot {
	sorted := make([]RunID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := sorted[:0]
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		out = append(out, id)
	}
	return RunSnapshot{ids: out}
}

// IDs returns a copy of the identifiers in ascending order.
func (s RunSnapshot) IDs() []RunID {
	out := make([]RunID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of identifiers in the snapshot.
func (s RunSnapshot) Len() int { return len(s.ids) }

// Contains reports whether id is part of the snapshot.
func (s RunSnapshot) Contains(id RunID) bool {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	return i < len(s.ids) && s.ids[i] == id
}

// Equal reports whether both snapshots hold the same identifiers.
func (s RunSnapshot) Equal(other RunSnapshot) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// Diff returns the identifiers present in s but not in old, ascending.
func (s RunSnapshot) Diff(old RunSnapshot) []RunID {
	var out []RunID
	for _, id := range s.ids {
		if !old.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
