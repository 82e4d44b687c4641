package detect

import "math"

const (
	minAbandonMs      = 1500
	abandonSlackMs    = 800
	sustainGapMs      = 400
	abandonKeepMs     = 1500
	minWindowMs       = 4500
	windowSlackMs     = 1900
	windowPulseFactor = 2
)

// PendingPulse is the candidate streak currently being evaluated.
type PendingPulse struct {
	Open      bool
	StartMs   int64
	LastHitMs int64
	Hits      int
}

// pulseMachine debounces candidate frames into pulses.
type pulseMachine struct {
	cfg            AlgorithmConfig
	cooldownFrames float64

	state         PendingPulse
	lastConfirmed int
}

func newPulseMachine(cfg AlgorithmConfig, sourceFps float64) pulseMachine {
	return pulseMachine{
		cfg:            cfg,
		cooldownFrames: cfg.CooldownSec * sourceFps,
		lastConfirmed:  -1,
	}
}

func (p *pulseMachine) abandonAfterMs() int64 {
	return int64(math.Max(minAbandonMs, p.cfg.MaxPulseSec*1000+abandonSlackMs))
}

// stale reports whether an open pulse has gone too long without a hit.
func (p *pulseMachine) stale(nowMs int64) bool {
	return p.state.Open && nowMs-p.state.LastHitMs > p.abandonAfterMs()
}

func (p *pulseMachine) coolingDown(frameIndex int) bool {
	if p.lastConfirmed < 0 {
		return false
	}
	return float64(frameIndex-p.lastConfirmed) < p.cooldownFrames
}

// hit registers a candidate frame and reports whether it opened a pulse.
func (p *pulseMachine) hit(sp SamplePoint, strong bool) bool {
	p.state.Hits++
	if p.state.Open {
		p.state.LastHitMs = sp.TimestampMs
		return false
	}
	if p.state.Hits < p.cfg.RequireConsecutiveHits && !strong {
		return false
	}
	if p.coolingDown(sp.FrameIndex) {
		return false
	}
	p.state.Open = true
	p.state.StartMs = sp.TimestampMs
	p.state.LastHitMs = sp.TimestampMs
	return true
}

// miss decays the hit counter; an open pulse stays open.
func (p *pulseMachine) miss() {
	if p.state.Hits > 0 {
		p.state.Hits--
	}
}

// due reports whether the open pulse has reached its maximum duration.
func (p *pulseMachine) due(nowMs int64) bool {
	return p.state.Open && float64(nowMs-p.state.StartMs) >= p.cfg.MaxPulseSec*1000
}

func (p *pulseMachine) reset() {
	p.state = PendingPulse{}
}

func (p *pulseMachine) confirmed(frameIndex int) {
	p.lastConfirmed = frameIndex
}

// sustainLatch detects light that stays on for longer than any pulse could.
type sustainLatch struct {
	limitMs   float64
	active    bool
	runStart  int64
	lastHit   int64
	triggered bool
}

func newSustainLatch(cfg AlgorithmConfig) sustainLatch {
	return sustainLatch{limitMs: cfg.SustainRejectSec * 1000}
}

// observe updates the current candidate run and reports whether the latch is set.
func (s *sustainLatch) observe(candidate bool, nowMs int64) bool {
	switch {
	case candidate:
		if !s.active || nowMs-s.lastHit > sustainGapMs {
			s.active = true
			s.runStart = nowMs
			s.triggered = false
		}
		s.lastHit = nowMs
		if float64(nowMs-s.runStart) > s.limitMs {
			s.triggered = true
		}
	case s.active && nowMs-s.lastHit > sustainGapMs:
		s.active = false
		s.triggered = false
	}
	return s.triggered
}

func windowSpanMs(cfg AlgorithmConfig) int64 {
	return int64(math.Max(minWindowMs, windowSlackMs+windowPulseFactor*cfg.MaxPulseSec*1000))
}
