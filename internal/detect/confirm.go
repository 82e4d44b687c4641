package detect

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Kind classifies a confirmed pulse.
type Kind string

const (
	KindFlash Kind = "flash"
	KindSpark Kind = "spark"
)

const (
	peakLookbackMs      = 250
	localBaseFromMs     = 1500
	localBaseToMs       = 200
	fallSlackMs         = 400
	minSustainSpanMs    = 260
	motionRadiusMs      = 1000
	minMotionPoints     = 3
	fallBrightTolerance = 0.8
)

// ConfirmResult is the verdict on one closed pulse.
type ConfirmResult struct {
	Accepted   bool
	Kind       Kind
	Confidence float64
	Box        *Box
	Peak       SamplePoint
	HasFall    bool

	// Sustained and Moving are independent rejection flags.
	Sustained bool
	Moving    bool

	Reason string
}

// Confirmed reports whether the pulse should become an event.
func (r ConfirmResult) Confirmed() bool {
	return r.Accepted && !r.Sustained && !r.Moving
}

// PulseConfirmer re-examines the sliding window once a pulse has run for its
// maximum duration.
type PulseConfirmer struct {
	cfg AlgorithmConfig
}

func NewPulseConfirmer(cfg AlgorithmConfig) PulseConfirmer {
	return PulseConfirmer{cfg: cfg}
}

// Confirm evaluates the time-ordered window for a pulse that opened at
// pulseStartMs.
func (c PulseConfirmer) Confirm(window []SamplePoint, pulseStartMs int64) ConfirmResult {
	peakIdx, ok := selectPeak(window, pulseStartMs-peakLookbackMs)
	if !ok {
		return ConfirmResult{Reason: "empty window"}
	}
	peak := window[peakIdx]
	res := ConfirmResult{Peak: peak}

	baseMean, baseBright := localBaseline(window, peak.TimestampMs)
	riseMean := peak.Mean - baseMean
	riseBright := peak.BrightRatio - baseBright

	if riseMean < c.cfg.MeanDeltaRise && riseBright < c.cfg.BrightRatioDelta && !c.anyRawJump(window) {
		res.Reason = "no rise"
		return res
	}

	maxPulseMs := c.cfg.MaxPulseSec * 1000
	res.HasFall = c.hasFall(window, peak.TimestampMs, baseMean, baseBright, maxPulseMs)
	if !res.HasFall {
		res.Reason = "no fall"
		return res
	}
	res.Accepted = true

	span := c.sustainSpan(window, peakIdx, baseMean)
	if float64(span) > math.Max(minSustainSpanMs, maxPulseMs) {
		res.Sustained = true
		res.Reason = "sustained light"
	}
	if c.moving(window, peak) {
		res.Moving = true
		if res.Reason == "" {
			res.Reason = "moving source"
		}
	}
	if !res.Confirmed() {
		return res
	}

	if riseMean >= math.Max(c.cfg.MeanDeltaRise, 0.75*c.cfg.GlobalBrightnessDelta) ||
		peak.AreaRatio >= c.cfg.FlashAreaRatio {
		res.Kind = KindFlash
	} else {
		res.Kind = KindSpark
	}

	var conf float64
	if peak.Box != nil {
		conf = 0.35*capRatio(riseBright, 2*c.cfg.BrightRatioDelta) +
			0.25*capRatio(peak.AreaRatio, c.cfg.FlashAreaRatio) +
			0.30*capRatio(riseMean, 2*c.cfg.MeanDeltaRise) +
			0.10
		box := *peak.Box
		res.Box = &box
	} else {
		conf = 0.60*capRatio(riseMean, 2*c.cfg.MeanDeltaRise) +
			0.15*capRatio(peak.MeanDelta, c.cfg.GlobalBrightnessDelta) +
			0.15*capRatio(riseBright, 2*c.cfg.BrightRatioDelta) +
			0.10
	}
	res.Confidence = clamp(conf, 0.10, 1)
	return res
}

// selectPeak picks the strongest sample at or after fromMs. Samples with a
// bounding box win; ties go to the earliest sample.
func selectPeak(window []SamplePoint, fromMs int64) (int, bool) {
	best, bestScore := -1, math.Inf(-1)
	for i := range window {
		s := &window[i]
		if s.TimestampMs < fromMs || s.Box == nil {
			continue
		}
		score := math.Max(s.Confidence, math.Max(1000*s.BrightDelta, 800*math.Max(0, s.BrightRise)))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return best, true
	}

	best, bestScore = -1, math.Inf(-1)
	for i := range window {
		s := &window[i]
		if s.TimestampMs < fromMs {
			continue
		}
		if s.MeanRise > bestScore {
			best, bestScore = i, s.MeanRise
		}
	}
	if best >= 0 && bestScore > 0 {
		return best, true
	}

	for i := range window {
		s := &window[i]
		if s.TimestampMs < fromMs {
			continue
		}
		if best < 0 || s.MeanDelta > window[best].MeanDelta {
			best = i
		}
	}
	return best, best >= 0
}

// localBaseline is the median level shortly before the peak.
func localBaseline(window []SamplePoint, peakMs int64) (float64, float64) {
	var means, brights []float64
	collect := func(keep func(SamplePoint) bool) {
		means, brights = means[:0], brights[:0]
		for _, s := range window {
			if keep(s) {
				means = append(means, s.Mean)
				brights = append(brights, s.BrightRatio)
			}
		}
	}

	collect(func(s SamplePoint) bool {
		return s.TimestampMs >= peakMs-localBaseFromMs && s.TimestampMs <= peakMs-localBaseToMs
	})
	if len(means) == 0 {
		collect(func(s SamplePoint) bool { return s.TimestampMs < peakMs })
	}
	if len(means) == 0 {
		n := min(2, len(window))
		collect(func(s SamplePoint) bool { return s.TimestampMs <= window[n-1].TimestampMs })
	}

	m, _ := stats.Median(means)
	b, _ := stats.Median(brights)
	return m, b
}

func (c PulseConfirmer) anyRawJump(window []SamplePoint) bool {
	for _, s := range window {
		if s.MeanDelta >= c.cfg.GlobalBrightnessDelta || s.BrightDelta >= c.cfg.BrightRatioDelta {
			return true
		}
	}
	return false
}

func (c PulseConfirmer) hasFall(window []SamplePoint, peakMs int64, baseMean, baseBright, maxPulseMs float64) bool {
	limit := float64(peakMs) + maxPulseMs + fallSlackMs
	for _, s := range window {
		if s.TimestampMs <= peakMs || float64(s.TimestampMs) > limit {
			continue
		}
		if s.Mean-baseMean <= c.cfg.MeanDeltaFall &&
			s.BrightRatio-baseBright <= fallBrightTolerance*c.cfg.BrightRatioDelta {
			return true
		}
	}
	return false
}

// sustainSpan is the length of the contiguous run around the peak where the
// mean stays at least MeanDeltaRise above baseline.
func (c PulseConfirmer) sustainSpan(window []SamplePoint, peakIdx int, baseMean float64) int64 {
	level := baseMean + c.cfg.MeanDeltaRise
	if window[peakIdx].Mean < level {
		return 0
	}
	first, last := peakIdx, peakIdx
	for first > 0 && window[first-1].Mean >= level {
		first--
	}
	for last < len(window)-1 && window[last+1].Mean >= level {
		last++
	}
	return window[last].TimestampMs - window[first].TimestampMs
}

func (c PulseConfirmer) moving(window []SamplePoint, peak SamplePoint) bool {
	var pts []Point
	width := peak.Width
	for _, s := range window {
		if s.Box == nil {
			continue
		}
		if d := s.TimestampMs - peak.TimestampMs; d < -motionRadiusMs || d > motionRadiusMs {
			continue
		}
		pts = append(pts, s.Center)
		if width <= 0 {
			width = s.Width
		}
	}
	if len(pts) < minMotionPoints {
		return false
	}

	var total float64
	for i := 1; i < len(pts); i++ {
		total += pts[i].distance(pts[i-1])
	}
	return total >= float64(width)*c.cfg.MaxMotionRatioPerSec
}
