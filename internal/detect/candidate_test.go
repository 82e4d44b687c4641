package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateDetector_GlobalPath(t *testing.T) {
	d := NewCandidateDetector(DefaultAlgorithmConfig())

	tests := []struct {
		name string
		sp   SamplePoint
	}{
		{name: "mean rise", sp: SamplePoint{MeanRise: 10}},
		{name: "bright rise", sp: SamplePoint{BrightRise: 0.004}},
		{name: "mean delta", sp: SamplePoint{MeanDelta: 18}},
		{name: "bright delta", sp: SamplePoint{BrightDelta: 0.005}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := tt.sp
			sp.Width, sp.Height = 100, 100
			called := false
			d.Evaluate(&sp, true, func() (Region, bool) {
				called = true
				return Region{}, false
			})

			assert.True(t, sp.Candidate)
			assert.Nil(t, sp.Box)
			assert.False(t, called, "region finder must not run when the global path fires")
			assert.GreaterOrEqual(t, sp.Confidence, 0.08)
			assert.LessOrEqual(t, sp.Confidence, 1.0)
		})
	}
}

func TestCandidateDetector_LocalPath(t *testing.T) {
	d := NewCandidateDetector(DefaultAlgorithmConfig())

	sp := SamplePoint{Width: 200, Height: 100, BrightDelta: 0.003, MeanDelta: 9, MeanRise: 2}
	d.Evaluate(&sp, true, func() (Region, bool) {
		return Region{Box: Box{X: 10, Y: 20, W: 40, H: 50}, Area: 1500}, true
	})

	require.True(t, sp.Candidate)
	require.NotNil(t, sp.Box)
	assert.Equal(t, Box{X: 10, Y: 20, W: 40, H: 50}, *sp.Box)
	assert.InDelta(t, 0.1, sp.AreaRatio, 1e-9)
	assert.Equal(t, Point{X: 30, Y: 45}, sp.Center)

	want := 0.45*0.7 + 0.25*0.5 + 0.20*0.5 + 0.10*0.1
	assert.InDelta(t, want, sp.Confidence, 1e-9)
}

func TestCandidateDetector_LocalPathRejects(t *testing.T) {
	d := NewCandidateDetector(DefaultAlgorithmConfig())
	small := func() (Region, bool) { return Region{Box: Box{W: 4, H: 4}, Area: 16}, true }
	large := func() (Region, bool) { return Region{Box: Box{W: 40, H: 40}, Area: 1600}, true }
	none := func() (Region, bool) { return Region{}, false }

	tests := []struct {
		name    string
		hasPrev bool
		find    RegionFinder
	}{
		{name: "below min contour area", hasPrev: true, find: small},
		{name: "no previous frame", hasPrev: false, find: large},
		{name: "no region", hasPrev: true, find: none},
		{name: "nil finder", hasPrev: true, find: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := SamplePoint{Width: 100, Height: 100}
			d.Evaluate(&sp, tt.hasPrev, tt.find)
			assert.False(t, sp.Candidate)
			assert.Nil(t, sp.Box)
		})
	}
}

func TestCandidateDetector_ConfidenceFloor(t *testing.T) {
	d := NewCandidateDetector(DefaultAlgorithmConfig())
	sp := SamplePoint{Width: 1000, Height: 1000, BrightDelta: -0.01, MeanDelta: -5, MeanRise: -3}
	d.Evaluate(&sp, true, func() (Region, bool) {
		return Region{Box: Box{W: 5, H: 5}, Area: 25}, true
	})

	require.True(t, sp.Candidate)
	assert.Equal(t, 0.08, sp.Confidence)
}
