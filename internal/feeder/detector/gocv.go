//go:build cgo

package detector

import (
	"image"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
)

// GoCV is the classical detection pipeline: background subtraction,
// edge detection, and adaptive thresholding combined, then filtered by
// shape. Thread-confined to the processing goroutine; owns the MOG2
// background model across calls.
type GoCV struct {
	mog2          gocv.BackgroundSubtractorMOG2
	mog2Ready     bool
	mog2History   int
	mog2VarThresh int
	mog2Shadows   bool

	lastWidth, lastHeight int

	debugFg       atomic.Pointer[gocv.Mat]
	debugEdges    atomic.Pointer[gocv.Mat]
	debugCombined atomic.Pointer[gocv.Mat]
	debugAnnotated atomic.Pointer[gocv.Mat]
}

// NewGoCV creates a detector; the background model is (re)built lazily
// on the first Process call, or whenever frame dimensions change.
func NewGoCV() *GoCV {
	return &GoCV{}
}

// Process implements the reference algorithm: ROI crop, preprocess,
// MOG2, Canny, adaptive binary, OR-combine, morphology, connected
// components, per-component contour/hull solidity, shape filter,
// coordinate mapping back to full-frame space.
func (g *GoCV) Process(frame feeder.Frame, cfg *feeder.DetectionParams) ([]feeder.DetectedObject, feeder.ROI, error) {
	if frame.Empty() {
		g.Reset()
		return nil, feeder.ROI{}, nil
	}
	if frame.Width != g.lastWidth || frame.Height != g.lastHeight {
		g.Reset()
		g.lastWidth, g.lastHeight = frame.Width, frame.Height
	}

	roi := feeder.ResolveROI(cfg, frame.Width, frame.Height)

	full, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return nil, roi, err
	}
	defer full.Close()

	crop := full.Region(image.Rect(roi.X, roi.Y, roi.X+roi.W, roi.Y+roi.H))
	defer crop.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)

	if cfg.GaussianBlurKernel > 1 {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(gray, &blurred, image.Pt(cfg.GaussianBlurKernel, cfg.GaussianBlurKernel), 0, 0, gocv.BorderDefault)
		gray.Close()
		gray = blurred
	}

	g.ensureMOG2(cfg)
	fg := gocv.NewMat()
	defer fg.Close()
	// gocv's BackgroundSubtractorMOG2.Apply has no learning-rate
	// parameter (the underlying cv::BackgroundSubtractor::apply's
	// optional third argument isn't exposed by the binding), so
	// cfg.BGLearningRate cannot be threaded through here; see DESIGN.md.
	g.mog2.Apply(gray, &fg)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(cfg.CannyLow), float32(cfg.CannyHigh))

	binary := gocv.NewMat()
	defer binary.Close()
	if cfg.BinaryThreshold > 0 {
		gocv.Threshold(gray, &binary, float32(cfg.BinaryThreshold), 255, gocv.ThresholdBinary)
	} else {
		gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	}

	combined := gocv.NewMat()
	gocv.BitwiseOr(fg, edges, &combined)
	gocv.BitwiseOr(combined, binary, &combined)

	g.applyMorphology(&combined, cfg)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	connectivity := cfg.Connectivity
	if connectivity != 4 && connectivity != 8 {
		connectivity = 4
	}
	numLabels := gocv.ConnectedComponentsWithStats(combined, &labels, &stats, &centroids, connectivity, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	var objects []feeder.DetectedObject
	for label := 1; label < numLabels; label++ {
		x := stats.GetIntAt(label, 0)
		y := stats.GetIntAt(label, 1)
		w := stats.GetIntAt(label, 2)
		h := stats.GetIntAt(label, 3)
		area := float64(stats.GetIntAt(label, 4))

		if cfg.RejectBorder && touchesBorder(int(x), int(y), int(w), int(h), roi.W, roi.H) {
			continue
		}
		solidity := componentSolidity(combined, image.Rect(int(x), int(y), int(x)+int(w), int(y)+int(h)))
		if !passesShapeFilter(area, int(w), int(h), solidity, shapeFilterConfig(cfg)) {
			continue
		}

		cx := centroids.GetDoubleAt(label, 0)
		cy := centroids.GetDoubleAt(label, 1)

		objects = append(objects, feeder.DetectedObject{
			X: int(x) + roi.X, Y: int(y) + roi.Y, W: int(w), H: int(h),
			CX: cx + float64(roi.X), CY: cy + float64(roi.Y),
			Area: area,
		})
	}

	g.latchDebug(&fg, &edges, &combined)

	return objects, roi, nil
}

// shapeFilterConfig projects the subset of feeder.DetectionParams
// passesShapeFilter needs back into a config.DetectionConfig.
func shapeFilterConfig(p *feeder.DetectionParams) config.DetectionConfig {
	return config.DetectionConfig{
		MinArea: p.MinArea, MaxArea: p.MaxArea,
		MinAspectRatio: p.MinAspectRatio, MaxAspectRatio: p.MaxAspectRatio,
		MinExtent: p.MinExtent, MaxSolidity: p.MaxSolidity,
	}
}

// componentSolidity finds the largest contour within the component's
// bounding box in mask and returns contourArea/hullArea, in [0,1]. It
// returns 0 (treated by passesShapeFilter as "uncomputed") if no
// contour or a degenerate hull is found.
func componentSolidity(mask gocv.Mat, rect image.Rectangle) float64 {
	region := mask.Region(rect)
	defer region.Close()

	contours := gocv.FindContours(region, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return 0
	}

	largest := contours.At(0)
	largestArea := gocv.ContourArea(largest)
	for i := 1; i < contours.Size(); i++ {
		c := contours.At(i)
		if a := gocv.ContourArea(c); a > largestArea {
			largest = c
			largestArea = a
		}
	}
	if largestArea <= 0 {
		return 0
	}

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(largest, &hull, true, true)
	hullPoints := gocv.NewPointVectorFromMat(hull)
	defer hullPoints.Close()

	hullArea := gocv.ContourArea(hullPoints)
	if hullArea <= 0 {
		return 0
	}
	return largestArea / hullArea
}

// ensureMOG2 (re)creates the background subtractor if cfg's MOG2
// parameters changed since the last call.
func (g *GoCV) ensureMOG2(cfg *feeder.DetectionParams) {
	if g.mog2Ready &&
		g.mog2History == cfg.BGHistory &&
		g.mog2VarThresh == cfg.BGVarThreshold &&
		g.mog2Shadows == cfg.DetectShadows {
		return
	}
	if g.mog2Ready {
		g.mog2.Close()
	}
	g.mog2 = gocv.NewBackgroundSubtractorMOG2WithParams(cfg.BGHistory, float64(cfg.BGVarThreshold), cfg.DetectShadows)
	g.mog2Ready = true
	g.mog2History = cfg.BGHistory
	g.mog2VarThresh = cfg.BGVarThreshold
	g.mog2Shadows = cfg.DetectShadows
}

// applyMorphology runs the optional dilate/close/open chain; default
// config skips all three.
func (g *GoCV) applyMorphology(m *gocv.Mat, cfg *feeder.DetectionParams) {
	if cfg.DilateKernelSize > 0 && cfg.DilateIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.DilateKernelSize, cfg.DilateKernelSize))
		defer kernel.Close()
		gocv.DilateWithParams(*m, m, kernel, image.Pt(-1, -1), cfg.DilateIterations, gocv.BorderConstant, gocv.Scalar{})
	}
	if cfg.CloseKernelSize > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.CloseKernelSize, cfg.CloseKernelSize))
		defer kernel.Close()
		gocv.MorphologyEx(*m, m, gocv.MorphClose, kernel)
	}
	if cfg.OpeningKernelSize > 0 && cfg.OpeningIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.OpeningKernelSize, cfg.OpeningKernelSize))
		defer kernel.Close()
		for i := 0; i < cfg.OpeningIterations; i++ {
			gocv.MorphologyEx(*m, m, gocv.MorphOpen, kernel)
		}
	}
}

// latchDebug clones the given mats into the atomic debug slots so the
// UI thread can read the latest without locking the detector.
func (g *GoCV) latchDebug(fg, edges, combined *gocv.Mat) {
	fgClone := fg.Clone()
	edgesClone := edges.Clone()
	combinedClone := combined.Clone()
	g.swapDebug(&g.debugFg, &fgClone)
	g.swapDebug(&g.debugEdges, &edgesClone)
	g.swapDebug(&g.debugCombined, &combinedClone)
}

func (g *GoCV) swapDebug(slot *atomic.Pointer[gocv.Mat], next *gocv.Mat) {
	prev := slot.Swap(next)
	if prev != nil {
		prev.Close()
	}
}

// DebugForeground returns the most recent foreground mask, or nil if
// none has been produced yet. Caller must not mutate or close it.
func (g *GoCV) DebugForeground() *gocv.Mat { return g.debugFg.Load() }

// DebugEdges returns the most recent Canny edge map.
func (g *GoCV) DebugEdges() *gocv.Mat { return g.debugEdges.Load() }

// DebugCombined returns the most recent OR-combined mask.
func (g *GoCV) DebugCombined() *gocv.Mat { return g.debugCombined.Load() }

// Reset discards the background model; the next Process call rebuilds
// it from scratch. Used on malformed/dimension-mismatched frames.
func (g *GoCV) Reset() {
	if g.mog2Ready {
		g.mog2.Close()
		g.mog2 = gocv.BackgroundSubtractorMOG2{}
		g.mog2Ready = false
	}
}

// Close releases the background model and any latched debug mats.
func (g *GoCV) Close() error {
	g.Reset()
	for _, slot := range []*atomic.Pointer[gocv.Mat]{&g.debugFg, &g.debugEdges, &g.debugCombined, &g.debugAnnotated} {
		if m := slot.Swap(nil); m != nil {
			m.Close()
		}
	}
	return nil
}

var _ feeder.Detector = (*GoCV)(nil)
