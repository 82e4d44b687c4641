package detect

// Outcome describes what the pulse machinery did for one sampled frame.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeOpened
	OutcomeAbandoned
	OutcomeSustained
	OutcomeRejected
	OutcomeConfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpened:
		return "opened"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeSustained:
		return "sustained"
	case OutcomeRejected:
		return "rejected"
	case OutcomeConfirmed:
		return "confirmed"
	default:
		return "none"
	}
}

// StepResult is returned for every sampled frame fed to the Detector.
type StepResult struct {
	Sample  SamplePoint
	Outcome Outcome
	// Result is set when Outcome is OutcomeRejected or OutcomeConfirmed.
	Result ConfirmResult
}

// Detector runs the per-video pipeline: baseline, candidate detection, pulse
// debouncing and confirmation. It is not safe for concurrent use; one
// Detector serves one video.
type Detector struct {
	cfg        AlgorithmConfig
	baseline   *RobustBaseline
	candidates CandidateDetector
	confirmer  PulseConfirmer
	pulse      pulseMachine
	sustain    sustainLatch

	windowMs int64
	window   []SamplePoint
	prev     SamplePoint
	hasPrev  bool
}

// NewDetector builds a detector for a source decoded at sourceFps.
func NewDetector(cfg AlgorithmConfig, sourceFps float64) *Detector {
	cfg = cfg.Clamp()
	return &Detector{
		cfg:        cfg,
		baseline:   NewRobustBaseline(),
		candidates: NewCandidateDetector(cfg),
		confirmer:  NewPulseConfirmer(cfg),
		pulse:      newPulseMachine(cfg, sourceFps),
		sustain:    newSustainLatch(cfg),
		windowMs:   windowSpanMs(cfg),
	}
}

// Step feeds one sampled frame. find is consulted only when global statistics
// do not already flag the frame.
func (d *Detector) Step(obs Observation, find RegionFinder) StepResult {
	seeding := !d.baseline.Seeded()
	if seeding {
		d.baseline.Update(obs.Mean, obs.BrightRatio)
	}

	var prev *SamplePoint
	if d.hasPrev {
		prev = &d.prev
	}
	sp := newSamplePoint(obs, prev, d.baseline.Mean(), d.baseline.Bright())
	d.candidates.Evaluate(&sp, d.hasPrev, find)
	d.push(sp)

	res := StepResult{Sample: sp}
	now := sp.TimestampMs

	latched := d.sustain.observe(sp.Candidate, now)
	switch {
	case latched && d.pulse.state.Open:
		d.abandon(now)
		res.Outcome = OutcomeSustained
	case d.pulse.stale(now):
		d.abandon(now)
		res.Outcome = OutcomeAbandoned
	}

	switch {
	case latched:
		d.pulse.state.Hits = 0
	case sp.Candidate:
		if d.pulse.hit(sp, d.candidates.strongHit(&sp)) && res.Outcome == OutcomeNone {
			res.Outcome = OutcomeOpened
		}
	default:
		d.pulse.miss()
	}

	if d.pulse.due(now) {
		res.Result = d.confirmer.Confirm(d.window, d.pulse.state.StartMs)
		if res.Result.Confirmed() {
			res.Outcome = OutcomeConfirmed
			d.pulse.confirmed(res.Result.Peak.FrameIndex)
		} else {
			res.Outcome = OutcomeRejected
		}
		d.trimThrough(d.pulse.state.LastHitMs)
		d.pulse.reset()
	}

	switch {
	case latched:
		d.baseline.UpdateSlow(obs.Mean, obs.BrightRatio)
	case !seeding && !sp.Candidate && !d.pulse.state.Open:
		d.baseline.Update(obs.Mean, obs.BrightRatio)
	}

	d.prev, d.hasPrev = sp, true
	return res
}

// Flush ends the stream. A pulse still open is confirmed against the samples
// seen so far instead of being dropped; a clip that ends shortly after a
// flash still reports it. Outcome is OutcomeNone when no pulse was open.
func (d *Detector) Flush() StepResult {
	if !d.pulse.state.Open {
		return StepResult{}
	}

	var res StepResult
	if n := len(d.window); n > 0 {
		res.Sample = d.window[n-1]
	}
	res.Result = d.confirmer.Confirm(d.window, d.pulse.state.StartMs)
	if res.Result.Confirmed() {
		res.Outcome = OutcomeConfirmed
		d.pulse.confirmed(res.Result.Peak.FrameIndex)
	} else {
		res.Outcome = OutcomeRejected
	}
	d.pulse.reset()
	d.window = d.window[:0]
	return res
}

func (d *Detector) push(sp SamplePoint) {
	d.window = append(d.window, sp)
	d.trimBefore(sp.TimestampMs - d.windowMs)
}

func (d *Detector) abandon(now int64) {
	d.pulse.reset()
	d.trimBefore(now - abandonKeepMs)
}

// trimBefore drops samples older than cutoff.
func (d *Detector) trimBefore(cutoff int64) {
	i := 0
	for i < len(d.window) && d.window[i].TimestampMs < cutoff {
		i++
	}
	d.drop(i)
}

// trimThrough drops samples up to and including ts. The newest sample is
// always kept.
func (d *Detector) trimThrough(ts int64) {
	i := 0
	for i < len(d.window)-1 && d.window[i].TimestampMs <= ts {
		i++
	}
	d.drop(i)
}

func (d *Detector) drop(n int) {
	if n == 0 {
		return
	}
	d.window = append(d.window[:0], d.window[n:]...)
}
