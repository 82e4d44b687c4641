package evidence

import "sort"

// DefaultK is the number of snapshots retained per video.
const DefaultK = 5

// Entry is a retained snapshot as far as the keeper is concerned.
type Entry struct {
	ID         string
	Confidence float64
	ImagePath  string
}

// Decision is the outcome of TopK.Decide.
type Decision struct {
	Keep bool
	// Evict is the entry to replace, nil when there is still room.
	Evict *Entry
}

// TopK keeps the K highest-confidence snapshots of one video.
type TopK struct {
	k     int
	items []Entry
}

func NewTopK(k int) *TopK {
	if k <= 0 {
		k = DefaultK
	}
	return &TopK{k: k, items: make([]Entry, 0, k)}
}

// K returns the capacity.
func (t *TopK) K() int {
	return t.k
}

// Seed loads already persisted snapshots, highest confidence first. Entries
// beyond K are ignored here; the end-of-video pass deletes them.
func (t *TopK) Seed(entries []Entry) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > t.k {
		sorted = sorted[:t.k]
	}
	t.items = append(t.items[:0], sorted...)
}

// Decide reports whether a snapshot with the given confidence should be kept.
// When full, only a confidence strictly above the current minimum is kept and
// that minimum becomes the eviction candidate.
func (t *TopK) Decide(confidence float64) Decision {
	if len(t.items) < t.k {
		return Decision{Keep: true}
	}
	idx := t.minIndex()
	if confidence <= t.items[idx].Confidence {
		return Decision{}
	}
	evict := t.items[idx]
	return Decision{Keep: true, Evict: &evict}
}

// CommitKept records e, replacing d.Evict if set.
func (t *TopK) CommitKept(e Entry, d Decision) {
	if d.Evict != nil {
		for i := range t.items {
			if t.items[i].ID == d.Evict.ID {
				t.items = append(t.items[:i], t.items[i+1:]...)
				break
			}
		}
	}
	t.items = append(t.items, e)
}

// Len returns the number of held entries.
func (t *TopK) Len() int {
	return len(t.items)
}

func (t *TopK) minIndex() int {
	idx := 0
	for i := 1; i < len(t.items); i++ {
		if t.items[i].Confidence < t.items[idx].Confidence {
			idx = i
		}
	}
	return idx
}
