// Package cvops implements the vision collaborators on top of OpenCV (gocv).
package cvops

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/kdimtricp/arcwatch/internal/vision"
)

// maxBadFrames bounds consecutive unreadable frames before the stream is
// treated as ended.
const maxBadFrames = 30

type frame struct {
	mat gocv.Mat
}

func (f *frame) Width() int   { return f.mat.Cols() }
func (f *frame) Height() int  { return f.mat.Rows() }
func (f *frame) Close() error { return f.mat.Close() }

// Decoder opens video files with cv::VideoCapture.
type Decoder struct{}

var _ vision.Decoder = Decoder{}

func (Decoder) Open(path string) (vision.Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video: %s", path)
	}

	info := vision.Info{
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	return &source{vc: vc, info: info}, nil
}

type source struct {
	vc   *gocv.VideoCapture
	info vision.Info
	read int
	bad  int
}

func (s *source) Info() vision.Info {
	return s.info
}

// Next decodes the next frame. A failed read before the reported frame count
// is a bad frame; past it, or after too many bad frames in a row, it is EOF.
func (s *source) Next() (vision.Frame, error) {
	m := gocv.NewMat()
	if ok := s.vc.Read(&m); !ok || m.Empty() {
		m.Close()
		s.read++
		s.bad++
		if s.info.FrameCount <= 0 || s.read >= s.info.FrameCount || s.bad > maxBadFrames {
			return nil, io.EOF
		}
		return nil, vision.ErrBadFrame
	}
	s.read++
	s.bad = 0
	return &frame{mat: m}, nil
}

func (s *source) Close() error {
	return s.vc.Close()
}
