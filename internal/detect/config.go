package detect

import (
	"math"

	"github.com/goccy/go-json"
)

// AlgorithmConfig holds every threshold used by the flash/spark detector.
// Values are always clamped to a sane range; see Clamp.
type AlgorithmConfig struct {
	SampleFps              float64 `json:"sample_fps" koanf:"sample_fps"`
	DiffThreshold          float64 `json:"diff_threshold" koanf:"diff_threshold"`
	AdaptiveDiffK          float64 `json:"adaptive_diff_k" koanf:"adaptive_diff_k"`
	DiffThresholdMin       float64 `json:"diff_threshold_min" koanf:"diff_threshold_min"`
	MinContourArea         float64 `json:"min_contour_area" koanf:"min_contour_area"`
	MeanDeltaRise          float64 `json:"mean_delta_rise" koanf:"mean_delta_rise"`
	MeanDeltaFall          float64 `json:"mean_delta_fall" koanf:"mean_delta_fall"`
	BrightStdK             float64 `json:"bright_std_k" koanf:"bright_std_k"`
	BrightThrMin           float64 `json:"bright_thr_min" koanf:"bright_thr_min"`
	BrightThrMax           float64 `json:"bright_thr_max" koanf:"bright_thr_max"`
	BrightRatioDelta       float64 `json:"bright_ratio_delta" koanf:"bright_ratio_delta"`
	FlashAreaRatio         float64 `json:"flash_area_ratio" koanf:"flash_area_ratio"`
	GlobalBrightnessDelta  float64 `json:"global_brightness_delta" koanf:"global_brightness_delta"`
	MaxPulseSec            float64 `json:"max_pulse_sec" koanf:"max_pulse_sec"`
	SustainRejectSec       float64 `json:"sustain_reject_sec" koanf:"sustain_reject_sec"`
	ResizeMaxWidth         int     `json:"resize_max_width" koanf:"resize_max_width"`
	BlurKernel             int     `json:"blur_kernel" koanf:"blur_kernel"`
	RequireConsecutiveHits int     `json:"require_consecutive_hits" koanf:"require_consecutive_hits"`
	CooldownSec            float64 `json:"cooldown_sec" koanf:"cooldown_sec"`
	MergeGapSec            float64 `json:"merge_gap_sec" koanf:"merge_gap_sec"`
	MaxMotionRatioPerSec   float64 `json:"max_motion_ratio_per_sec" koanf:"max_motion_ratio_per_sec"`
}

// DefaultAlgorithmConfig returns the documented defaults.
func DefaultAlgorithmConfig() AlgorithmConfig {
	return AlgorithmConfig{
		SampleFps:              12,
		DiffThreshold:          25,
		AdaptiveDiffK:          2.5,
		DiffThresholdMin:       12,
		MinContourArea:         24,
		MeanDeltaRise:          10,
		MeanDeltaFall:          4,
		BrightStdK:             2.5,
		BrightThrMin:           180,
		BrightThrMax:           250,
		BrightRatioDelta:       0.004,
		FlashAreaRatio:         0.12,
		GlobalBrightnessDelta:  18,
		MaxPulseSec:            1.3,
		SustainRejectSec:       2.0,
		ResizeMaxWidth:         640,
		BlurKernel:             5,
		RequireConsecutiveHits: 2,
		CooldownSec:            0.6,
		MergeGapSec:            1.5,
		MaxMotionRatioPerSec:   0.12,
	}
}

// algorithmConfigJSON mirrors AlgorithmConfig with optional fields so that keys
// missing from the input keep their defaults.
type algorithmConfigJSON struct {
	SampleFps              *float64 `json:"sample_fps,omitempty"`
	DiffThreshold          *float64 `json:"diff_threshold,omitempty"`
	AdaptiveDiffK          *float64 `json:"adaptive_diff_k,omitempty"`
	DiffThresholdMin       *float64 `json:"diff_threshold_min,omitempty"`
	MinContourArea         *float64 `json:"min_contour_area,omitempty"`
	MeanDeltaRise          *float64 `json:"mean_delta_rise,omitempty"`
	MeanDeltaFall          *float64 `json:"mean_delta_fall,omitempty"`
	BrightStdK             *float64 `json:"bright_std_k,omitempty"`
	BrightThrMin           *float64 `json:"bright_thr_min,omitempty"`
	BrightThrMax           *float64 `json:"bright_thr_max,omitempty"`
	BrightRatioDelta       *float64 `json:"bright_ratio_delta,omitempty"`
	FlashAreaRatio         *float64 `json:"flash_area_ratio,omitempty"`
	GlobalBrightnessDelta  *float64 `json:"global_brightness_delta,omitempty"`
	MaxPulseSec            *float64 `json:"max_pulse_sec,omitempty"`
	SustainRejectSec       *float64 `json:"sustain_reject_sec,omitempty"`
	ResizeMaxWidth         *float64 `json:"resize_max_width,omitempty"`
	BlurKernel             *float64 `json:"blur_kernel,omitempty"`
	RequireConsecutiveHits *float64 `json:"require_consecutive_hits,omitempty"`
	CooldownSec            *float64 `json:"cooldown_sec,omitempty"`
	MergeGapSec            *float64 `json:"merge_gap_sec,omitempty"`
	MaxMotionRatioPerSec   *float64 `json:"max_motion_ratio_per_sec,omitempty"`
}

// ParseAlgorithmConfig builds a clamped config from a flat JSON object.
// Empty or malformed input yields the defaults; it never returns an error.
// Fields are decoded one by one so a single bad value only resets that field.
func ParseAlgorithmConfig(data []byte) AlgorithmConfig {
	cfg := DefaultAlgorithmConfig()
	if len(data) == 0 {
		return cfg
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	var in algorithmConfigJSON
	for key, value := range raw {
		single, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			continue
		}
		// Ignore per-key failures (e.g. "sample_fps": "fast").
		_ = json.Unmarshal(single, &in)
	}

	setFloat(&cfg.SampleFps, in.SampleFps)
	setFloat(&cfg.DiffThreshold, in.DiffThreshold)
	setFloat(&cfg.AdaptiveDiffK, in.AdaptiveDiffK)
	setFloat(&cfg.DiffThresholdMin, in.DiffThresholdMin)
	setFloat(&cfg.MinContourArea, in.MinContourArea)
	setFloat(&cfg.MeanDeltaRise, in.MeanDeltaRise)
	setFloat(&cfg.MeanDeltaFall, in.MeanDeltaFall)
	setFloat(&cfg.BrightStdK, in.BrightStdK)
	setFloat(&cfg.BrightThrMin, in.BrightThrMin)
	setFloat(&cfg.BrightThrMax, in.BrightThrMax)
	setFloat(&cfg.BrightRatioDelta, in.BrightRatioDelta)
	setFloat(&cfg.FlashAreaRatio, in.FlashAreaRatio)
	setFloat(&cfg.GlobalBrightnessDelta, in.GlobalBrightnessDelta)
	setFloat(&cfg.MaxPulseSec, in.MaxPulseSec)
	setFloat(&cfg.SustainRejectSec, in.SustainRejectSec)
	setInt(&cfg.ResizeMaxWidth, in.ResizeMaxWidth)
	setInt(&cfg.BlurKernel, in.BlurKernel)
	setInt(&cfg.RequireConsecutiveHits, in.RequireConsecutiveHits)
	setFloat(&cfg.CooldownSec, in.CooldownSec)
	setFloat(&cfg.MergeGapSec, in.MergeGapSec)
	setFloat(&cfg.MaxMotionRatioPerSec, in.MaxMotionRatioPerSec)

	return cfg.Clamp()
}

func setFloat(dst *float64, v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return
	}
	*dst = *v
}

func setInt(dst *int, v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return
	}
	// Avoid overflow on absurd inputs; Clamp narrows the range afterwards.
	*dst = int(math.Round(math.Max(-1e6, math.Min(1e6, *v))))
}

// Clamp returns a copy with every field forced into its documented range.
// Non-finite values are replaced by the default before clamping.
func (c AlgorithmConfig) Clamp() AlgorithmConfig {
	d := DefaultAlgorithmConfig()

	c.SampleFps = clampFloat(c.SampleFps, d.SampleFps, 1, 60)
	c.DiffThreshold = clampFloat(c.DiffThreshold, d.DiffThreshold, 1, 255)
	c.AdaptiveDiffK = clampFloat(c.AdaptiveDiffK, d.AdaptiveDiffK, 0, 10)
	c.DiffThresholdMin = clampFloat(c.DiffThresholdMin, d.DiffThresholdMin, 1, 255)
	c.MinContourArea = clampFloat(c.MinContourArea, d.MinContourArea, 1, 1e6)
	c.MeanDeltaRise = clampFloat(c.MeanDeltaRise, d.MeanDeltaRise, 0.5, 255)
	c.MeanDeltaFall = clampFloat(c.MeanDeltaFall, d.MeanDeltaFall, 0.1, 255)
	c.BrightStdK = clampFloat(c.BrightStdK, d.BrightStdK, 0, 10)
	c.BrightThrMin = clampFloat(c.BrightThrMin, d.BrightThrMin, 0, 255)
	c.BrightThrMax = clampFloat(c.BrightThrMax, d.BrightThrMax, c.BrightThrMin, 255)
	c.BrightRatioDelta = clampFloat(c.BrightRatioDelta, d.BrightRatioDelta, 0.0001, 1)
	c.FlashAreaRatio = clampFloat(c.FlashAreaRatio, d.FlashAreaRatio, 0.001, 1)
	c.GlobalBrightnessDelta = clampFloat(c.GlobalBrightnessDelta, d.GlobalBrightnessDelta, 1, 255)
	c.MaxPulseSec = clampFloat(c.MaxPulseSec, d.MaxPulseSec, 0.1, 5)
	c.SustainRejectSec = clampFloat(c.SustainRejectSec, d.SustainRejectSec, 0.2, 30)
	c.CooldownSec = clampFloat(c.CooldownSec, d.CooldownSec, 0, 30)
	c.MergeGapSec = clampFloat(c.MergeGapSec, d.MergeGapSec, 0, 60)
	c.MaxMotionRatioPerSec = clampFloat(c.MaxMotionRatioPerSec, d.MaxMotionRatioPerSec, 0.01, 10)

	switch {
	case c.ResizeMaxWidth <= 0:
		c.ResizeMaxWidth = 0
	case c.ResizeMaxWidth < 64:
		c.ResizeMaxWidth = 64
	case c.ResizeMaxWidth > 4096:
		c.ResizeMaxWidth = 4096
	}

	switch {
	case c.BlurKernel <= 1:
		c.BlurKernel = 0
	case c.BlurKernel < 3:
		c.BlurKernel = 3
	case c.BlurKernel > 31:
		c.BlurKernel = 31
	}
	if c.BlurKernel > 0 && c.BlurKernel%2 == 0 {
		c.BlurKernel++
	}

	if c.RequireConsecutiveHits < 1 {
		c.RequireConsecutiveHits = 1
	} else if c.RequireConsecutiveHits > 10 {
		c.RequireConsecutiveHits = 10
	}

	return c
}

func clampFloat(v, def, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DiffThresholdFor resolves the absolute-difference binarisation level for a
// diff image with the given mean and standard deviation.
func (c AlgorithmConfig) DiffThresholdFor(mean, std float64) float64 {
	thr := c.DiffThreshold
	if c.AdaptiveDiffK > 0 {
		thr = mean + c.AdaptiveDiffK*std
	}
	thr = math.Max(c.DiffThresholdMin, thr)
	return math.Max(1, math.Min(255, thr))
}

// BrightThreshold is the per-frame adaptive level above which a pixel counts as bright.
func (c AlgorithmConfig) BrightThreshold(mean, std float64) float64 {
	thr := mean + c.BrightStdK*std
	return math.Max(c.BrightThrMin, math.Min(c.BrightThrMax, thr))
}
