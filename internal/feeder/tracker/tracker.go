// Package tracker associates detections across frames into persistent
// Track identities, bridging short gaps with velocity prediction and
// rejecting tracks that never actually travel down-frame. When
// tracking.smooth_positions is set, each track's centroid is run
// through a Kalman filter before it feeds matching and eligibility.
package tracker

import (
	"math"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/smoothing"
)

// maxVelocity caps the per-frame prediction step so a momentary bad
// match can't fling a track's predicted position off-screen.
const maxVelocity = 200.0

// Track is one persistent identity across frames.
type Track struct {
	ID    int
	X, Y  int
	W, H  int
	Area  float64
	CX    float64
	CY    float64

	FirstFrame int
	LastFrame  int
	FirstY     int
	MinY       int
	MaxY       int

	Counted bool

	Positions []feeder.Point
	Areas     []float64

	VX, VY       float64
	PredX, PredY float64
	MissedFrames int
}

// bbox returns the track's current bounding box in the form IoU needs.
func (t *Track) bbox() (x, y, w, h int) { return t.X, t.Y, t.W, t.H }

// eligible reports whether t satisfies the counting gates: enough
// elapsed frames, enough downward travel, and consistent direction.
func (t *Track) eligible(currentFrame int, cfg config.TrackingConfig) bool {
	if currentFrame-t.FirstFrame < cfg.MinTrackFrames {
		return false
	}
	if t.MaxY-t.MinY < cfg.MinYTravel {
		return false
	}
	return directionConsistency(t.Positions) >= cfg.DirectionConsistencyRatio
}

// directionConsistency is the fraction of consecutive position-history
// samples whose y coordinate is non-decreasing.
func directionConsistency(positions []feeder.Point) float64 {
	if len(positions) < 2 {
		return 1.0
	}
	nonDecreasing := 0
	for i := 1; i < len(positions); i++ {
		if positions[i].Y >= positions[i-1].Y {
			nonDecreasing++
		}
	}
	return float64(nonDecreasing) / float64(len(positions)-1)
}

// Tracker assigns each new detection to an existing Track or creates a
// new one, predicts positions for unmatched tracks, and retires stale
// ones. Thread-confined to the processing goroutine.
type Tracker struct {
	cfg       config.TrackingConfig
	tracks    map[int]*Track
	nextID    int
	smoothers map[int]*smoothing.Kalman2D
}

// New creates a tracker using cfg for matching/eligibility thresholds.
func New(cfg config.TrackingConfig) *Tracker {
	return &Tracker{
		cfg:       cfg,
		tracks:    make(map[int]*Track),
		nextID:    1,
		smoothers: make(map[int]*smoothing.Kalman2D),
	}
}

// SetConfig swaps in a new tunable snapshot, taking effect from the
// next Update call.
func (tr *Tracker) SetConfig(cfg config.TrackingConfig) {
	tr.cfg = cfg
}

// Eligible reports whether the given track id is currently eligible
// for counting, per the track's eligibility rule. Update itself does
// not filter tracks by this rule.
func (tr *Tracker) Eligible(id int, currentFrame int) bool {
	t, ok := tr.tracks[id]
	if !ok {
		return false
	}
	return t.eligible(currentFrame, tr.cfg)
}

// candidate is one scored (detection, track) pairing considered during
// greedy matching.
type candidate struct {
	detIdx   int
	trackID  int
	score    float64
	detArea  float64
}

// Update matches detections against the currently alive tracks,
// advances unmatched tracks by prediction, creates new tracks for
// unmatched detections, and retires stale tracks. Returns every
// currently-alive track (matched, predicted, and newly created).
func (tr *Tracker) Update(detections []feeder.DetectedObject, currentFrame int) []*Track {
	dMax := math.Hypot(float64(tr.cfg.CrossingToleranceX), float64(tr.cfg.CrossingToleranceY))

	var candidates []candidate
	for di, d := range detections {
		for id, t := range tr.tracks {
			score := matchScore(d, t, dMax, tr.cfg)
			if score >= tr.cfg.MatchThreshold {
				candidates = append(candidates, candidate{detIdx: di, trackID: id, score: score, detArea: d.Area})
			}
		}
	}

	matchedDet := make(map[int]bool, len(detections))
	matchedTrack := make(map[int]bool, len(tr.tracks))

	greedySort(candidates)
	for _, c := range candidates {
		if matchedDet[c.detIdx] || matchedTrack[c.trackID] {
			continue
		}
		matchedDet[c.detIdx] = true
		matchedTrack[c.trackID] = true
		tr.applyMatch(tr.tracks[c.trackID], detections[c.detIdx], currentFrame)
	}

	for id, t := range tr.tracks {
		if matchedTrack[id] {
			continue
		}
		tr.advanceUnmatched(t)
	}

	for di, d := range detections {
		if matchedDet[di] {
			continue
		}
		t := tr.newTrack(d, currentFrame)
		tr.tracks[t.ID] = t
	}

	tr.retireStale(currentFrame)

	out := make([]*Track, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		out = append(out, t)
	}
	return out
}

// matchScore computes the weighted distance/area/IoU score for
// pairing detection d against track t's predicted position.
func matchScore(d feeder.DetectedObject, t *Track, dMax float64, cfg config.TrackingConfig) float64 {
	dist := math.Hypot(d.CX-t.PredX, d.CY-t.PredY)
	distTerm := 1.0 - dist/dMax
	if distTerm < 0 {
		distTerm = 0
	}

	maxArea := math.Max(d.Area, t.Area)
	var areaTerm float64
	if maxArea > 0 {
		areaTerm = 1.0 - math.Abs(d.Area-t.Area)/maxArea
	}

	areaIoU := iou(d.X, d.Y, d.W, d.H, t.X, t.Y, t.W, t.H)

	return cfg.WeightDistance*distTerm + cfg.WeightArea*areaTerm + cfg.WeightIOU*areaIoU
}

// iou is the intersection-over-union of two axis-aligned boxes.
func iou(ax, ay, aw, ah, bx, by, bw, bh int) float64 {
	ix1, iy1 := max(ax, bx), max(ay, by)
	ix2, iy2 := min(ax+aw, bx+bw), min(ay+ah, by+bh)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := float64((ix2 - ix1) * (iy2 - iy1))
	union := float64(aw*ah+bw*bh) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// greedySort orders candidates by descending score; ties (difference
// below 1e-6) are broken by preferring the smaller-area detection.
func greedySort(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// less reports whether a should sort before b (higher score first,
// smaller detection area breaking a near-tie).
func less(a, b candidate) bool {
	diff := a.score - b.score
	if diff > 1e-6 {
		return true
	}
	if diff < -1e-6 {
		return false
	}
	return a.detArea < b.detArea
}

// applyMatch folds a matched detection into t's history and resets its
// miss counter.
func (tr *Tracker) applyMatch(t *Track, d feeder.DetectedObject, currentFrame int) {
	t.X, t.Y, t.W, t.H = d.X, d.Y, d.W, d.H
	t.Area = d.Area
	t.CX, t.CY = d.CX, d.CY
	if tr.cfg.SmoothPositions {
		if s, ok := tr.smoothers[t.ID]; ok {
			p := s.Update(smoothing.Point2D{X: t.CX, Y: t.CY})
			t.CX, t.CY = p.X, p.Y
		}
	}
	t.LastFrame = currentFrame
	t.MissedFrames = 0

	appendCapped(&t.Positions, feeder.Point{X: t.CX, Y: t.CY}, tr.cfg.HistoryLength)
	appendCapped2(&t.Areas, d.Area, tr.cfg.HistoryLength)

	if d.Y < t.MinY {
		t.MinY = d.Y
	}
	if d.Y > t.MaxY {
		t.MaxY = d.Y
	}

	t.VX, t.VY = estimateVelocity(t.Positions, tr.cfg.HistoryLength)
	t.PredX, t.PredY = clampPredict(t.CX, t.CY, t.VX, t.VY, 0)
}

// advanceUnmatched bumps a track's miss counter and advances its
// predicted position by its last known velocity.
func (tr *Tracker) advanceUnmatched(t *Track) {
	t.MissedFrames++
	t.PredX, t.PredY = clampPredict(t.CX, t.CY, t.VX, t.VY, t.MissedFrames)
}

// clampPredict advances (cx, cy) by (vx, vy) scaled by missed, with
// vx/vy already sanity-clamped by estimateVelocity.
func clampPredict(cx, cy, vx, vy float64, missed int) (float64, float64) {
	return cx + vx*float64(missed), cy + vy*float64(missed)
}

// estimateVelocity averages per-frame position deltas over up to the
// last historyLength samples, clamped to maxVelocity in magnitude.
func estimateVelocity(positions []feeder.Point, historyLength int) (vx, vy float64) {
	if len(positions) < 2 {
		return 0, 0
	}
	start := 0
	if len(positions) > historyLength {
		start = len(positions) - historyLength
	}
	window := positions[start:]

	var sumDX, sumDY float64
	for i := 1; i < len(window); i++ {
		sumDX += window[i].X - window[i-1].X
		sumDY += window[i].Y - window[i-1].Y
	}
	n := float64(len(window) - 1)
	vx, vy = sumDX/n, sumDY/n

	if mag := math.Hypot(vx, vy); mag > maxVelocity {
		scale := maxVelocity / mag
		vx *= scale
		vy *= scale
	}
	return vx, vy
}

// appendCapped appends p to *s, dropping the oldest entry once the
// cap is exceeded.
func appendCapped(s *[]feeder.Point, p feeder.Point, cap int) {
	*s = append(*s, p)
	if len(*s) > cap {
		*s = (*s)[len(*s)-cap:]
	}
}

// appendCapped2 is appendCapped's float64 counterpart for Areas.
func appendCapped2(s *[]float64, v float64, cap int) {
	*s = append(*s, v)
	if len(*s) > cap {
		*s = (*s)[len(*s)-cap:]
	}
}

// newTrack creates a fresh zero-velocity track from an unmatched
// detection.
func (tr *Tracker) newTrack(d feeder.DetectedObject, currentFrame int) *Track {
	id := tr.nextID
	tr.nextID++

	t := &Track{
		ID:         id,
		X:          d.X,
		Y:          d.Y,
		W:          d.W,
		H:          d.H,
		Area:       d.Area,
		CX:         d.CX,
		CY:         d.CY,
		FirstFrame: currentFrame,
		LastFrame:  currentFrame,
		FirstY:     d.Y,
		MinY:       d.Y,
		MaxY:       d.Y,
		Positions:  []feeder.Point{{X: d.CX, Y: d.CY}},
		Areas:      []float64{d.Area},
		PredX:      d.CX,
		PredY:      d.CY,
	}
	if tr.cfg.SmoothPositions {
		tr.smoothers[id] = smoothing.NewKalman2D(
			float64(tr.cfg.CrossingToleranceX), float64(tr.cfg.CrossingToleranceY), tr.cfg.HistoryLength)
	}
	return t
}

// retireStale removes tracks that have gone unmatched too long, and
// separately ages out never-counted tracks that overstayed their
// lifetime without ever crossing the gate.
func (tr *Tracker) retireStale(currentFrame int) {
	for id, t := range tr.tracks {
		if t.MissedFrames > tr.cfg.MaxMissedFrames {
			delete(tr.tracks, id)
			delete(tr.smoothers, id)
			continue
		}
		if !t.Counted && currentFrame-t.FirstFrame > tr.cfg.TrackLifetime {
			delete(tr.tracks, id)
			delete(tr.smoothers, id)
		}
	}
}

// Eligible reports whether t satisfies the gate-counter eligibility
// checks given the tracker's current configuration.
func Eligible(t *Track, currentFrame int, cfg config.TrackingConfig) bool {
	return t.eligible(currentFrame, cfg)
}
