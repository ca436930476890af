// Package gate emits exactly one crossing event per physical part as
// tracks cross a horizontal gate line, deduplicating against a noisy
// track stream with both a track-based and a coarse-grid safeguard.
package gate

import (
	"math"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/tracker"
)

// countedRecord is one entry of the deduplication memory.
type countedRecord struct {
	center feeder.Point
	frame  int
}

// Counter maintains the crossing-count invariant: a track crosses the
// gate at most once in its lifetime. Thread-confined to the processing
// goroutine.
type Counter struct {
	cfg  config.GateConfig
	tcfg config.TrackingConfig

	gateLineY int

	counter        int
	countedHistory []countedRecord
	triggered      map[gridCell]int
}

// gridCell is a coarse (x/radius, y/radius) bucket used by the
// secondary trigger-position safeguard.
type gridCell struct {
	gx, gy int
}

// New creates a counter for a frame of height frameHeight, using cfg
// for the gate line and dedup tolerances and tcfg for eligibility.
func New(cfg config.GateConfig, tcfg config.TrackingConfig, frameHeight int) *Counter {
	return &Counter{
		cfg:       cfg,
		tcfg:      tcfg,
		gateLineY: int(math.Round(cfg.GateLinePositionRatio * float64(frameHeight))),
		triggered: make(map[gridCell]int),
	}
}

// SetConfig swaps in new tunables and recomputes the gate line for the
// given frame height.
func (c *Counter) SetConfig(cfg config.GateConfig, tcfg config.TrackingConfig, frameHeight int) {
	c.cfg = cfg
	c.tcfg = tcfg
	c.gateLineY = int(math.Round(cfg.GateLinePositionRatio * float64(frameHeight)))
}

// Count returns the current non-negative crossing count.
func (c *Counter) Count() int { return c.counter }

// Update inspects every currently-alive track and counts the ones that
// have newly and legitimately crossed the gate line. Returns the
// number of new crossings observed this tick (0, 1, or more if several
// tracks cross on the same frame).
func (c *Counter) Update(tracks []*tracker.Track, currentFrame int) int {
	newCrossings := 0

	for _, t := range tracks {
		if t.Counted {
			continue
		}
		if t.CY < float64(c.gateLineY) {
			continue
		}
		if !tracker.Eligible(t, currentFrame, c.tcfg) {
			continue
		}
		if c.isDuplicate(t, currentFrame) {
			continue
		}

		c.counter++
		t.Counted = true
		c.record(t, currentFrame)
		newCrossings++
	}

	c.trimHistory(currentFrame)
	return newCrossings
}

// isDuplicate checks both the track-history dedup and the coarse-grid
// trigger-position safeguard.
func (c *Counter) isDuplicate(t *tracker.Track, currentFrame int) bool {
	for _, rec := range c.countedHistory {
		if currentFrame-rec.frame > c.tcfg.TemporalTolerance {
			continue
		}
		if math.Abs(t.CX-rec.center.X) <= float64(c.tcfg.CrossingToleranceX) &&
			math.Abs(t.CY-rec.center.Y) <= float64(c.tcfg.CrossingToleranceY) {
			return true
		}
	}

	radius := c.cfg.GateTriggerRadius
	if radius <= 0 {
		return false
	}
	cell := gridCell{gx: int(t.CX) / radius, gy: int(t.CY) / radius}
	if lastFrame, ok := c.triggered[cell]; ok && currentFrame-lastFrame <= c.cfg.HistoryFrames {
		return true
	}
	return false
}

// record appends a new counted-history entry and marks the
// corresponding trigger-grid cell.
func (c *Counter) record(t *tracker.Track, currentFrame int) {
	c.countedHistory = append(c.countedHistory, countedRecord{
		center: feeder.Point{X: t.CX, Y: t.CY},
		frame:  currentFrame,
	})

	radius := c.cfg.GateTriggerRadius
	if radius > 0 {
		cell := gridCell{gx: int(t.CX) / radius, gy: int(t.CY) / radius}
		c.triggered[cell] = currentFrame
	}
}

// trimHistory drops counted-history and trigger-grid entries older
// than cfg.HistoryFrames.
func (c *Counter) trimHistory(currentFrame int) {
	kept := c.countedHistory[:0]
	for _, rec := range c.countedHistory {
		if currentFrame-rec.frame <= c.cfg.HistoryFrames {
			kept = append(kept, rec)
		}
	}
	c.countedHistory = kept

	for cell, frame := range c.triggered {
		if currentFrame-frame > c.cfg.HistoryFrames {
			delete(c.triggered, cell)
		}
	}
}

// ResetBatch zeros the counter, clears the dedup memory, and clears
// every currently-alive track's Counted flag, without destroying the
// tracks themselves — in-flight parts still correctly deduplicate
// against the tracker's ongoing history.
func (c *Counter) ResetBatch(tracks []*tracker.Track) {
	c.counter = 0
	c.countedHistory = nil
	c.triggered = make(map[gridCell]int)
	for _, t := range tracks {
		t.Counted = false
	}
}
