// Package detector turns a frame into a list of DetectedObject
// restricted to the active ROI. The classical (MOG2+edge) pipeline
// lives in gocv.go behind a cgo build tag; this file holds the pure,
// cgo-free shape-filter math both the classical and any future
// plug-in detector share.
package detector

import "github.com/feedercounter/vibcounter/internal/feeder/config"

// passesShapeFilter applies the accept/reject gates of the reference
// algorithm's step 9 to one connected-component's measurements.
// solidity is contourArea/hullArea for the component's outer contour,
// in [0,1]; pass 0 when it could not be computed (e.g. a degenerate
// contour with no hull area) to skip that one gate.
func passesShapeFilter(area float64, w, h int, solidity float64, cfg config.DetectionConfig) bool {
	if area < float64(cfg.MinArea) || area > float64(cfg.MaxArea) {
		return false
	}
	if h == 0 {
		return false
	}
	aspect := float64(w) / float64(h)
	if aspect < cfg.MinAspectRatio || aspect > cfg.MaxAspectRatio {
		return false
	}
	boxArea := float64(w * h)
	if boxArea == 0 {
		return false
	}
	extent := area / boxArea
	if extent < cfg.MinExtent {
		return false
	}
	if solidity > 0 && cfg.MaxSolidity > 0 && solidity > cfg.MaxSolidity {
		return false
	}
	return true
}

// touchesBorder reports whether a bounding box of size (w,h) at (x,y)
// touches any edge of a roiW x roiH region.
func touchesBorder(x, y, w, h, roiW, roiH int) bool {
	return x <= 0 || y <= 0 || x+w >= roiW || y+h >= roiH
}
