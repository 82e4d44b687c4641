package detect

import (
	"math"

	"github.com/google/uuid"
)

// EventState is the in-memory view of an event the merger may still extend.
type EventState struct {
	ID         string
	Kind       Kind
	StartSec   float64
	EndSec     float64
	PeakSec    float64
	FrameIndex int
	Confidence float64
	Box        *Box
	Sequence   int
}

// Pulse is a confirmed pulse ready to be folded into an event.
type Pulse struct {
	Kind       Kind
	TimeSec    float64
	FrameIndex int
	Confidence float64
	Box        *Box
}

// PulseFromResult converts a confirmed result into a Pulse.
func PulseFromResult(r ConfirmResult) Pulse {
	return Pulse{
		Kind:       r.Kind,
		TimeSec:    float64(r.Peak.TimestampMs) / 1000,
		FrameIndex: r.Peak.FrameIndex,
		Confidence: r.Confidence,
		Box:        r.Box,
	}
}

// EventMerger folds confirmed pulses into events. Only the most recent event
// of a file is open for merging.
type EventMerger struct {
	gapSec  float64
	lastSeq int
	open    *EventState
	newID   func() string
}

// NewEventMerger starts numbering after lastSequence.
func NewEventMerger(mergeGapSec float64, lastSequence int) *EventMerger {
	return &EventMerger{
		gapSec:  mergeGapSec,
		lastSeq: lastSequence,
		newID:   uuid.NewString,
	}
}

// Add folds p into the open event or starts a new one. It returns the event
// state to persist and whether it was newly created.
func (m *EventMerger) Add(p Pulse) (EventState, bool) {
	if o := m.open; o != nil && o.Kind == p.Kind && p.TimeSec-o.EndSec <= m.gapSec {
		o.EndSec = math.Max(o.EndSec, p.TimeSec)
		o.PeakSec = p.TimeSec
		o.FrameIndex = p.FrameIndex
		o.Confidence = math.Max(o.Confidence, p.Confidence)
		if p.Box != nil {
			b := *p.Box
			o.Box = &b
		}
		return *o, false
	}

	m.lastSeq++
	ev := &EventState{
		ID:         m.newID(),
		Kind:       p.Kind,
		StartSec:   p.TimeSec,
		EndSec:     p.TimeSec,
		PeakSec:    p.TimeSec,
		FrameIndex: p.FrameIndex,
		Confidence: p.Confidence,
		Sequence:   m.lastSeq,
	}
	if p.Box != nil {
		b := *p.Box
		ev.Box = &b
	}
	m.open = ev
	return *ev, true
}

// Open returns the mergeable event, if any.
func (m *EventMerger) Open() (EventState, bool) {
	if m.open == nil {
		return EventState{}, false
	}
	return *m.open, true
}

// Drop forgets the open event, e.g. when persisting it failed.
func (m *EventMerger) Drop() {
	m.open = nil
}
