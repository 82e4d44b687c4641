package detect

import "math"

// Box is an axis-aligned bounding box in original frame pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return b.W * b.H
}

// Center returns the box center point.
func (b Box) Center() Point {
	return Point{X: float64(b.X) + float64(b.W)/2, Y: float64(b.Y) + float64(b.H)/2}
}

// Point is a sub-pixel position in original frame coordinates.
type Point struct {
	X float64
	Y float64
}

func (p Point) distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Observation is what the image backend measures for one sampled frame.
type Observation struct {
	FrameIndex  int
	TimestampMs int64
	Width       int
	Height      int
	Mean        float64
	Std         float64
	BrightRatio float64
}

// Region is the largest changed area between two consecutive sampled frames,
// already mapped back to original frame coordinates.
type Region struct {
	Box  Box
	Area float64
}

// RegionFinder lazily computes the local change region for the current frame.
// It reports false when no contour qualifies.
type RegionFinder func() (Region, bool)

// SamplePoint is the derived per-frame record kept in the sliding window.
type SamplePoint struct {
	FrameIndex  int
	TimestampMs int64
	Width       int
	Height      int

	Mean        float64
	Std         float64
	BrightRatio float64

	MeanDelta   float64
	BrightDelta float64
	MeanRise    float64
	BrightRise  float64

	Candidate  bool
	Box        *Box
	AreaRatio  float64
	Confidence float64
	Center     Point
}

// newSamplePoint derives deltas against the previous sample and rises against
// the current baseline estimate.
func newSamplePoint(obs Observation, prev *SamplePoint, baseMean, baseBright float64) SamplePoint {
	sp := SamplePoint{
		FrameIndex:  obs.FrameIndex,
		TimestampMs: obs.TimestampMs,
		Width:       obs.Width,
		Height:      obs.Height,
		Mean:        obs.Mean,
		Std:         obs.Std,
		BrightRatio: obs.BrightRatio,
		MeanRise:    obs.Mean - baseMean,
		BrightRise:  obs.BrightRatio - baseBright,
	}
	if prev != nil {
		sp.MeanDelta = obs.Mean - prev.Mean
		sp.BrightDelta = obs.BrightRatio - prev.BrightRatio
	}
	return sp
}
