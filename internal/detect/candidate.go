package detect

import "math"

// CandidateDetector flags sampled frames that look like the start or body of a
// bright transient. Global statistics are checked first; the local contour
// path only runs when they are quiet.
type CandidateDetector struct {
	cfg AlgorithmConfig
}

// NewCandidateDetector returns a detector using the given config.
func NewCandidateDetector(cfg AlgorithmConfig) CandidateDetector {
	return CandidateDetector{cfg: cfg}
}

// Evaluate fills the candidate fields of sp. hasPrev is false for the first
// sampled frame of a video, which can never be a local candidate.
func (d CandidateDetector) Evaluate(sp *SamplePoint, hasPrev bool, find RegionFinder) {
	if d.globalHit(sp) {
		sp.Candidate = true
		sp.Box = nil
		sp.AreaRatio = 0
		sp.Confidence = d.globalConfidence(sp)
		return
	}

	if !hasPrev || find == nil {
		return
	}
	region, ok := find()
	if !ok || region.Area < d.cfg.MinContourArea || region.Box.Area() <= 0 {
		return
	}

	frameArea := float64(sp.Width * sp.Height)
	if frameArea <= 0 {
		return
	}
	box := region.Box
	sp.Candidate = true
	sp.Box = &box
	sp.AreaRatio = math.Min(1, float64(box.Area())/frameArea)
	sp.Center = box.Center()
	sp.Confidence = localConfidence(sp)
}

func (d CandidateDetector) globalHit(sp *SamplePoint) bool {
	return sp.MeanRise >= d.cfg.MeanDeltaRise ||
		sp.BrightRise >= d.cfg.BrightRatioDelta ||
		sp.MeanDelta >= d.cfg.GlobalBrightnessDelta ||
		sp.BrightDelta >= d.cfg.BrightRatioDelta
}

// strongHit is a single frame rising far enough to open a pulse on its own.
func (d CandidateDetector) strongHit(sp *SamplePoint) bool {
	return sp.MeanRise >= 0.9*d.cfg.MeanDeltaRise ||
		sp.BrightRise >= 0.9*d.cfg.BrightRatioDelta
}

func (d CandidateDetector) globalConfidence(sp *SamplePoint) float64 {
	c := 0.6*capRatio(sp.MeanRise, 2*d.cfg.MeanDeltaRise) +
		0.4*capRatio(sp.BrightRise, 2*d.cfg.BrightRatioDelta)
	return clamp(c, 0.08, 1)
}

func localConfidence(sp *SamplePoint) float64 {
	c := 0.45*math.Min(1, 7*sp.AreaRatio) +
		0.25*capRatio(sp.BrightDelta, 0.006) +
		0.20*capRatio(sp.MeanDelta, 18) +
		0.10*capRatio(sp.MeanRise, 20)
	return clamp(c, 0.08, 1)
}

// capRatio returns max(0, v)/ref capped at 1.
func capRatio(v, ref float64) float64 {
	if ref <= 0 || v <= 0 {
		return 0
	}
	return math.Min(1, v/ref)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
