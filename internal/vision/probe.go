package vision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Probe reads stream metadata with ffprobe. It is used when the decoder
// cannot report a frame rate.
type Probe struct {
	path string
}

// NewProbe locates the ffprobe binary. An empty bin looks it up in PATH.
func NewProbe(bin string) (*Probe, error) {
	if bin == "" {
		bin = "ffprobe"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &Probe{path: path}, nil
}

// FPS returns the average frame rate of the first video stream.
func (p *Probe) FPS(ctx context.Context, videoPath string) (float64, error) {
	out, err := p.run(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(out, "\n") {
		if fps, err := parseRate(line); err == nil && fps > 0 {
			return fps, nil
		}
	}
	return 0, fmt.Errorf("no frame rate in ffprobe output")
}

// Duration returns the container duration in seconds.
func (p *Probe) Duration(ctx context.Context, videoPath string) (float64, error) {
	out, err := p.run(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("invalid duration %q", strings.TrimSpace(out))
	}
	return duration, nil
}

func (p *Probe) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseRate parses "30000/1001" or "25" style rates.
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return strconv.ParseFloat(s, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}
	return n / d, nil
}
