package detect

import (
	"github.com/montanaflynn/stats"
)

const (
	baselineAlpha       = 0.05
	baselineSlowAlpha   = 0.01
	baselineHistory     = 48
	baselineMinMedianOf = 5
)

// RobustBaseline tracks the "normal" brightness level of a scene. It blends an
// EWMA with the median of recent history so that a few contaminated updates do
// not drag the estimate.
type RobustBaseline struct {
	seeded     bool
	ewmaMean   float64
	ewmaBright float64

	means   []float64
	brights []float64
	next    int
}

// NewRobustBaseline returns an empty baseline. The first Update seeds it.
func NewRobustBaseline() *RobustBaseline {
	return &RobustBaseline{
		means:   make([]float64, 0, baselineHistory),
		brights: make([]float64, 0, baselineHistory),
	}
}

// Seeded reports whether at least one observation has been absorbed.
func (b *RobustBaseline) Seeded() bool {
	return b.seeded
}

// Update absorbs a non-event observation.
func (b *RobustBaseline) Update(mean, bright float64) {
	b.update(mean, bright, baselineAlpha)
}

// UpdateSlow absorbs an observation taken while light is sustained, so a
// permanent lighting change is eventually accepted as the new normal.
func (b *RobustBaseline) UpdateSlow(mean, bright float64) {
	b.update(mean, bright, baselineSlowAlpha)
}

func (b *RobustBaseline) update(mean, bright, alpha float64) {
	if !b.seeded {
		b.ewmaMean, b.ewmaBright = mean, bright
		b.seeded = true
	} else {
		b.ewmaMean += alpha * (mean - b.ewmaMean)
		b.ewmaBright += alpha * (bright - b.ewmaBright)
	}

	if len(b.means) < baselineHistory {
		b.means = append(b.means, mean)
		b.brights = append(b.brights, bright)
		return
	}
	b.means[b.next] = mean
	b.brights[b.next] = bright
	b.next = (b.next + 1) % baselineHistory
}

// Mean returns the current brightness baseline.
func (b *RobustBaseline) Mean() float64 {
	return b.blend(b.ewmaMean, b.means)
}

// Bright returns the current bright-ratio baseline.
func (b *RobustBaseline) Bright() float64 {
	return b.blend(b.ewmaBright, b.brights)
}

func (b *RobustBaseline) blend(ewma float64, history []float64) float64 {
	if len(history) < baselineMinMedianOf {
		return ewma
	}
	med, err := stats.Median(history)
	if err != nil {
		return ewma
	}
	return (ewma + med) / 2
}
