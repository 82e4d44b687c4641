package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}
}

func TestEventMerger_MergeGap(t *testing.T) {
	tests := []struct {
		name       string
		gap        float64
		wantEvents int
	}{
		{name: "within gap", gap: 2, wantEvents: 1},
		{name: "zero gap", gap: 0, wantEvents: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEventMerger(tt.gap, 0)
			m.newID = sequentialIDs()

			events := map[string]EventState{}
			for i, ts := range []float64{1, 2, 3} {
				ev, _ := m.Add(Pulse{Kind: KindSpark, TimeSec: ts, FrameIndex: i * 12, Confidence: 0.5})
				events[ev.ID] = ev
			}

			require.Len(t, events, tt.wantEvents)
			if tt.wantEvents == 1 {
				ev := events["ev-1"]
				assert.Equal(t, 1.0, ev.StartSec)
				assert.Equal(t, 3.0, ev.EndSec)
				assert.Equal(t, 3.0, ev.PeakSec)
				assert.Equal(t, 24, ev.FrameIndex)
				assert.Equal(t, 1, ev.Sequence)
			} else {
				assert.Equal(t, 3, events["ev-3"].Sequence)
			}
		})
	}
}

func TestEventMerger_ConfidenceNeverDecreases(t *testing.T) {
	m := NewEventMerger(1.5, 0)
	box := &Box{X: 1, Y: 2, W: 3, H: 4}

	_, created := m.Add(Pulse{Kind: KindFlash, TimeSec: 1, Confidence: 0.9})
	assert.True(t, created)
	ev, created := m.Add(Pulse{Kind: KindFlash, TimeSec: 2, Confidence: 0.3, Box: box})
	assert.False(t, created)
	assert.Equal(t, 0.9, ev.Confidence)
	require.NotNil(t, ev.Box)
	assert.Equal(t, *box, *ev.Box)

	box.X = 99
	assert.Equal(t, 1, ev.Box.X, "event must not alias the pulse box")
}

func TestEventMerger_KindChangeStartsNewEvent(t *testing.T) {
	m := NewEventMerger(5, 7)

	first, _ := m.Add(Pulse{Kind: KindFlash, TimeSec: 1})
	second, created := m.Add(Pulse{Kind: KindSpark, TimeSec: 1.5})
	assert.True(t, created)
	assert.Equal(t, 8, first.Sequence)
	assert.Equal(t, 9, second.Sequence)

	// The flash event is no longer open, so a later flash starts fresh.
	third, created := m.Add(Pulse{Kind: KindFlash, TimeSec: 2})
	assert.True(t, created)
	assert.Equal(t, 10, third.Sequence)
}

func TestEventMerger_Drop(t *testing.T) {
	m := NewEventMerger(5, 0)
	m.Add(Pulse{Kind: KindFlash, TimeSec: 1})
	m.Drop()

	_, ok := m.Open()
	assert.False(t, ok)
	_, created := m.Add(Pulse{Kind: KindFlash, TimeSec: 1.2})
	assert.True(t, created)
}
