package cvops

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/vision"
)

const jpegQuality = 85

var boxColor = color.RGBA{R: 255, G: 32, B: 32, A: 255}

type plane struct {
	mat gocv.Mat
	// scale maps plane coordinates back to the original frame.
	scale float64
}

func (p *plane) Close() error { return p.mat.Close() }

// Analyzer runs the per-frame image operations.
type Analyzer struct {
	cfg detect.AlgorithmConfig
}

var _ vision.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(cfg detect.AlgorithmConfig) *Analyzer {
	return &Analyzer{cfg: cfg.Clamp()}
}

func (a *Analyzer) Prepare(f vision.Frame) (vision.Plane, error) {
	fr, ok := f.(*frame)
	if !ok || fr.mat.Empty() {
		return nil, vision.ErrBadFrame
	}

	gray := gocv.NewMat()
	if fr.mat.Channels() == 1 {
		fr.mat.CopyTo(&gray)
	} else {
		gocv.CvtColor(fr.mat, &gray, gocv.ColorBGRToGray)
	}

	if k := a.cfg.BlurKernel; k >= 3 {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
		gray.Close()
		gray = blurred
	}

	scale := 1.0
	if w := a.cfg.ResizeMaxWidth; w > 0 && gray.Cols() > w {
		scale = float64(gray.Cols()) / float64(w)
		h := max(1, int(float64(gray.Rows())/scale+0.5))
		small := gocv.NewMat()
		gocv.Resize(gray, &small, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		gray.Close()
		gray = small
	}

	if gray.Empty() {
		gray.Close()
		return nil, vision.ErrBadFrame
	}
	return &plane{mat: gray, scale: scale}, nil
}

func (a *Analyzer) Measure(p vision.Plane) (vision.Stats, error) {
	pl, ok := p.(*plane)
	if !ok || pl.mat.Empty() {
		return vision.Stats{}, vision.ErrBadFrame
	}

	mean, std := meanStd(pl.mat)

	mask := gocv.NewMat()
	defer mask.Close()
	thr := a.cfg.BrightThreshold(mean, std)
	gocv.Threshold(pl.mat, &mask, float32(thr), 255, gocv.ThresholdBinary)

	total := pl.mat.Rows() * pl.mat.Cols()
	return vision.Stats{
		Mean:        mean,
		Std:         std,
		BrightRatio: float64(gocv.CountNonZero(mask)) / float64(total),
	}, nil
}

func (a *Analyzer) LargestChange(prev, cur vision.Plane) (detect.Region, bool) {
	pp, ok1 := prev.(*plane)
	cp, ok2 := cur.(*plane)
	if !ok1 || !ok2 || pp.mat.Empty() || cp.mat.Empty() ||
		pp.mat.Rows() != cp.mat.Rows() || pp.mat.Cols() != cp.mat.Cols() {
		return detect.Region{}, false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(pp.mat, cp.mat, &diff)

	mean, std := meanStd(diff)
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, float32(a.cfg.DiffThresholdFor(mean, std)), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return detect.Region{}, false
	}

	r := gocv.BoundingRect(contours.At(best))
	return detect.Region{Box: scaleBox(r, cp.scale), Area: bestArea}, true
}

func (a *Analyzer) Encode(f vision.Frame) ([]byte, error) {
	fr, ok := f.(*frame)
	if !ok || fr.mat.Empty() {
		return nil, vision.ErrBadFrame
	}
	return encodeJPEG(fr.mat)
}

func (a *Analyzer) Annotate(data []byte, box *detect.Box) ([]byte, error) {
	if box == nil {
		return data, nil
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode snapshot: empty image")
	}

	rect := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H)
	gocv.Rectangle(&img, rect, boxColor, 2)
	return encodeJPEG(img)
}

func encodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func meanStd(m gocv.Mat) (float64, float64) {
	mean := gocv.NewMat()
	defer mean.Close()
	std := gocv.NewMat()
	defer std.Close()
	gocv.MeanStdDev(m, &mean, &std)
	return mean.GetDoubleAt(0, 0), std.GetDoubleAt(0, 0)
}

func scaleBox(r image.Rectangle, scale float64) detect.Box {
	s := func(v int) int { return int(float64(v)*scale + 0.5) }
	return detect.Box{X: s(r.Min.X), Y: s(r.Min.Y), W: s(r.Dx()), H: s(r.Dy())}
}
