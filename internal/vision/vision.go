// Package vision declares the decoder and image-operation collaborators the
// detection pipeline runs on. The OpenCV implementation lives in cvops.
package vision

import (
	"errors"

	"github.com/kdimtricp/arcwatch/internal/detect"
)

// ErrBadFrame marks a single frame that could not be decoded or converted.
// The pipeline skips such frames.
var ErrBadFrame = errors.New("bad frame")

// Info describes an opened video as reported by the container.
type Info struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
}

// Frame is one decoded color frame. Callers must Close it.
type Frame interface {
	Width() int
	Height() int
	Close() error
}

// Plane is a prepared single-channel image used for statistics and diffing.
type Plane interface {
	Close() error
}

// Source yields frames sequentially. Next returns io.EOF after the last frame.
type Source interface {
	Info() Info
	Next() (Frame, error)
	Close() error
}

type Decoder interface {
	Open(path string) (Source, error)
}

// Stats are the global brightness statistics of a prepared plane.
type Stats struct {
	Mean        float64
	Std         float64
	BrightRatio float64
}

type Analyzer interface {
	// Prepare converts to grayscale, blurs and downscales.
	Prepare(f Frame) (Plane, error)
	Measure(p Plane) (Stats, error)
	// LargestChange returns the largest changed region between two planes,
	// with the box mapped back to original frame coordinates.
	LargestChange(prev, cur Plane) (detect.Region, bool)
	Encode(f Frame) ([]byte, error)
	// Annotate decodes a JPEG, draws box on it when set and re-encodes it.
	Annotate(jpeg []byte, box *detect.Box) ([]byte, error)
}
