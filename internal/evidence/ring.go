// Package evidence keeps the material needed to illustrate confirmed events:
// a short history of encoded frames and the best snapshots per video.
package evidence

import "math"

const (
	minRingFrames  = 24
	ringRateFactor = 5

	// DefaultKeepMs is how far back frames stay retrievable.
	DefaultKeepMs = 5200
)

// Frame is one encoded sampled frame.
type Frame struct {
	FrameIndex  int
	TimestampMs int64
	Width       int
	Height      int
	JPEG        []byte
}

// FrameRing is a fixed-capacity ring of recent frames ordered by timestamp.
// Confirmation happens after a pulse has fallen, so the peak frame has to be
// looked up retroactively.
type FrameRing struct {
	buf    []Frame
	start  int
	n      int
	keepMs int64
}

// RingCapacity is max(24, 5*sampleRate).
func RingCapacity(sampleRate float64) int {
	return max(minRingFrames, int(math.Ceil(ringRateFactor*sampleRate)))
}

// NewFrameRing sizes the ring for the given effective sample rate. keepMs <= 0
// selects DefaultKeepMs.
func NewFrameRing(sampleRate float64, keepMs int64) *FrameRing {
	if keepMs <= 0 {
		keepMs = DefaultKeepMs
	}
	return &FrameRing{
		buf:    make([]Frame, RingCapacity(sampleRate)),
		keepMs: keepMs,
	}
}

// Len returns the number of held frames.
func (r *FrameRing) Len() int {
	return r.n
}

// Cap returns the ring capacity.
func (r *FrameRing) Cap() int {
	return len(r.buf)
}

// Push appends f, overwriting the oldest frame when full, then drops frames
// older than the keep window relative to f.
func (r *FrameRing) Push(f Frame) {
	if r.n == len(r.buf) {
		r.buf[r.start] = Frame{}
		r.start = (r.start + 1) % len(r.buf)
		r.n--
	}
	r.buf[(r.start+r.n)%len(r.buf)] = f
	r.n++
	r.Trim(f.TimestampMs)
}

// Trim drops frames older than nowMs minus the keep window.
func (r *FrameRing) Trim(nowMs int64) {
	cutoff := nowMs - r.keepMs
	for r.n > 0 && r.buf[r.start].TimestampMs < cutoff {
		r.buf[r.start] = Frame{}
		r.start = (r.start + 1) % len(r.buf)
		r.n--
	}
}

// Nearest returns the held frame whose timestamp is closest to ts. Ties go to
// the earlier frame.
func (r *FrameRing) Nearest(ts int64) (Frame, bool) {
	if r.n == 0 {
		return Frame{}, false
	}
	best := -1
	var bestDist int64
	for i := 0; i < r.n; i++ {
		f := &r.buf[(r.start+i)%len(r.buf)]
		d := f.TimestampMs - ts
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return r.buf[(r.start+best)%len(r.buf)], true
}

// Reset empties the ring.
func (r *FrameRing) Reset() {
	for i := range r.buf {
		r.buf[i] = Frame{}
	}
	r.start, r.n = 0, 0
}
