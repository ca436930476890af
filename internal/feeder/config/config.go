// Package config loads and hot-reloads the feeder's tunables.
//
// The configuration is a JSON-shaped key/value tree (per the external
// interface contract) mirrored into a Go struct tree with one section
// per component: camera, detection, gate, packaging, tracking, and the
// vibrator actuator backend.
//
// Reads take an immutable snapshot (*Config) via Manager.Snapshot;
// writers go through Manager.Set or the on-disk file watched by
// Manager.Watch. A snapshot already handed to a reader is never
// mutated in place — swaps replace the pointer, never the struct.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/ferrors"
)

// CameraConfig holds source capture settings.
type CameraConfig struct {
	DeviceID int    `json:"device_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FPS      int    `json:"fps"`
	FilePath string `json:"file_path"`
}

// DetectionConfig holds the foreground segmentation tunables.
type DetectionConfig struct {
	MinArea             int     `json:"min_area"`
	MaxArea             int     `json:"max_area"`
	MinAspectRatio      float64 `json:"min_aspect_ratio"`
	MaxAspectRatio      float64 `json:"max_aspect_ratio"`
	MinExtent           float64 `json:"min_extent"`
	MaxSolidity         float64 `json:"max_solidity"`
	BGHistory           int     `json:"bg_history"`
	BGVarThreshold      int     `json:"bg_var_threshold"`
	DetectShadows       bool    `json:"detect_shadows"`
	BGLearningRate      float64 `json:"bg_learning_rate"`
	CannyLow            int     `json:"canny_low"`
	CannyHigh           int     `json:"canny_high"`
	BinaryThreshold     int     `json:"binary_threshold"`
	GaussianBlurKernel  int     `json:"gaussian_blur_kernel_size"`
	DilateKernelSize    int     `json:"dilate_kernel_size"`
	DilateIterations    int     `json:"dilate_iterations"`
	CloseKernelSize     int     `json:"close_kernel_size"`
	OpeningKernelSize   int     `json:"opening_kernel_size"`
	OpeningIterations   int     `json:"opening_iterations"`
	Connectivity        int     `json:"connectivity"`
	RejectBorder        bool    `json:"reject_border"`
	ROIEnabled          bool    `json:"roi_enabled"`
	ROIX                int     `json:"roi_x"`
	ROIWidth            int     `json:"roi_width"`
	ROIHeight           int     `json:"roi_height"`
	ROIPositionRatio    float64 `json:"roi_position_ratio"`
	UltraHighSpeedMode  bool    `json:"ultra_high_speed_mode"`
	TargetFPS           int     `json:"target_fps"`
	HighSpeedFPSCutover int     `json:"high_speed_fps_cutover"`
}

// HighSpeedOverride returns the high-speed-mode parameter substitutions
// applied on top of a copy of d.
func (d DetectionConfig) HighSpeedOverride() DetectionConfig {
	hs := d
	hs.BGHistory = 100
	hs.BGVarThreshold = 8
	hs.MinArea = 1
	hs.MaxArea = 2000
	hs.BinaryThreshold = 3
	hs.DilateIterations = 0
	hs.OpeningIterations = 0
	hs.CloseKernelSize = 0
	return hs
}

// ToParams projects d onto the subset of fields a Detector consumes.
func (d DetectionConfig) ToParams() *feeder.DetectionParams {
	return &feeder.DetectionParams{
		MinArea: d.MinArea, MaxArea: d.MaxArea,
		MinAspectRatio: d.MinAspectRatio, MaxAspectRatio: d.MaxAspectRatio,
		MinExtent: d.MinExtent, MaxSolidity: d.MaxSolidity,
		BGHistory: d.BGHistory, BGVarThreshold: d.BGVarThreshold,
		DetectShadows: d.DetectShadows, BGLearningRate: d.BGLearningRate,
		CannyLow: d.CannyLow, CannyHigh: d.CannyHigh,
		BinaryThreshold: d.BinaryThreshold, GaussianBlurKernel: d.GaussianBlurKernel,
		DilateKernelSize: d.DilateKernelSize, DilateIterations: d.DilateIterations,
		CloseKernelSize: d.CloseKernelSize,
		OpeningKernelSize: d.OpeningKernelSize, OpeningIterations: d.OpeningIterations,
		Connectivity: d.Connectivity, RejectBorder: d.RejectBorder,
		ROIEnabled: d.ROIEnabled, ROIX: d.ROIX, ROIWidth: d.ROIWidth, ROIHeight: d.ROIHeight,
		ROIPositionRatio: d.ROIPositionRatio,
	}
}

// GateConfig holds the virtual gate / dedup tunables.
type GateConfig struct {
	EnableGateCounting    bool    `json:"enable_gate_counting"`
	GateLinePositionRatio float64 `json:"gate_line_position_ratio"`
	GateTriggerRadius     int     `json:"gate_trigger_radius"`
	HistoryFrames         int     `json:"gate_history_frames"`
}

// PackagingConfig holds the batch/vibrator-speed tunables.
type PackagingConfig struct {
	TargetCount          int `json:"target_count"`
	SpeedFullThreshold   float64 `json:"speed_full_threshold"`
	SpeedMediumThreshold float64 `json:"speed_medium_threshold"`
	SpeedSlowThreshold   float64 `json:"speed_slow_threshold"`
	AdvanceStopCount     int     `json:"advance_stop_count"`
	VibratorSpeedFull    int     `json:"vibrator_speed_full"`
	VibratorSpeedMedium  int     `json:"vibrator_speed_medium"`
	VibratorSpeedSlow    int     `json:"vibrator_speed_slow"`
	VibratorSpeedCreep   int     `json:"vibrator_speed_creep"`
}

// TrackingConfig holds the tracker's matching/eligibility tunables.
type TrackingConfig struct {
	CrossingToleranceX        int     `json:"crossing_tolerance_x"`
	CrossingToleranceY        int     `json:"crossing_tolerance_y"`
	MinTrackFrames            int     `json:"min_track_frames"`
	TrackLifetime             int     `json:"track_lifetime"`
	MinYTravel                int     `json:"min_y_travel"`
	HistoryLength             int     `json:"history_length"`
	TemporalTolerance         int     `json:"temporal_tolerance"`
	MaxMissedFrames           int     `json:"max_missed_frames"`
	MatchThreshold            float64 `json:"match_threshold"`
	WeightDistance            float64 `json:"weight_distance"`
	WeightArea                float64 `json:"weight_area"`
	WeightIOU                 float64 `json:"weight_iou"`
	DirectionConsistencyRatio float64 `json:"direction_consistency_ratio"`
	SmoothPositions           bool    `json:"smooth_positions"`
}

// VibratorConfig selects and parameterizes the actuator backend.
type VibratorConfig struct {
	Simulated bool   `json:"simulated"`
	PinNameA  string `json:"pin_name_a"`
	PinNameB  string `json:"pin_name_b"`
}

// Config is the complete, validated tunable tree for one feeder run.
type Config struct {
	Camera    CameraConfig    `json:"camera"`
	Detection DetectionConfig `json:"detection"`
	Gate      GateConfig      `json:"gate"`
	Packaging PackagingConfig `json:"packaging"`
	Tracking  TrackingConfig  `json:"tracking"`
	Vibrator  VibratorConfig  `json:"vibrator"`
}

// Default returns the reference configuration for a small-parts run.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			DeviceID: 0,
			Width:    640,
			Height:   480,
			FPS:      280,
		},
		Detection: DetectionConfig{
			MinArea:             20,
			MaxArea:             5000,
			MinAspectRatio:      0.2,
			MaxAspectRatio:      5.0,
			MinExtent:           0.3,
			MaxSolidity:         1.0,
			BGHistory:           500,
			BGVarThreshold:      16,
			DetectShadows:       false,
			BGLearningRate:      0.001,
			CannyLow:            3,
			CannyHigh:           10,
			BinaryThreshold:     0,
			GaussianBlurKernel:  1,
			Connectivity:        4,
			RejectBorder:        false,
			ROIEnabled:          true,
			ROIX:                0,
			ROIWidth:            0,
			ROIHeight:           200,
			ROIPositionRatio:    0.5,
			UltraHighSpeedMode:  false,
			TargetFPS:           280,
			HighSpeedFPSCutover: 220,
		},
		Gate: GateConfig{
			EnableGateCounting:    true,
			GateLinePositionRatio: 0.5,
			GateTriggerRadius:     20,
			HistoryFrames:         30,
		},
		Packaging: PackagingConfig{
			TargetCount:          150,
			SpeedFullThreshold:   0.85,
			SpeedMediumThreshold: 0.93,
			SpeedSlowThreshold:   0.97,
			AdvanceStopCount:     2,
			VibratorSpeedFull:    100,
			VibratorSpeedMedium:  60,
			VibratorSpeedSlow:    30,
			VibratorSpeedCreep:   10,
		},
		Tracking: TrackingConfig{
			CrossingToleranceX:        35,
			CrossingToleranceY:        50,
			MinTrackFrames:            2,
			TrackLifetime:             20,
			MinYTravel:                2,
			HistoryLength:             10,
			TemporalTolerance:         6,
			MaxMissedFrames:           5,
			MatchThreshold:            0.15,
			WeightDistance:            0.8,
			WeightArea:                0.2,
			WeightIOU:                 0.0,
			DirectionConsistencyRatio: 0.7,
			SmoothPositions:           false,
		},
		Vibrator: VibratorConfig{
			Simulated: true,
			PinNameA:  "GPIO17",
			PinNameB:  "GPIO27",
		},
	}
}

// Load reads and parses a JSON configuration file. A missing path
// returns the default configuration for an absent config file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfigInvalid, "parsing config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfigInvalid, "validating config", err)
	}

	return cfg, nil
}

// Validate checks the configuration against its documented ranges.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 {
		return fmt.Errorf("camera width must be positive, got %d", c.Camera.Width)
	}
	if c.Camera.Height <= 0 {
		return fmt.Errorf("camera height must be positive, got %d", c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera FPS must be positive, got %d", c.Camera.FPS)
	}

	d := c.Detection
	if d.MinArea < 1 || d.MaxArea < d.MinArea {
		return fmt.Errorf("detection.min_area/max_area invalid: %d/%d", d.MinArea, d.MaxArea)
	}
	if d.MinAspectRatio <= 0 || d.MaxAspectRatio < d.MinAspectRatio {
		return fmt.Errorf("detection.min_aspect_ratio/max_aspect_ratio invalid")
	}
	if d.MinExtent < 0 || d.MinExtent > 1 {
		return fmt.Errorf("detection.min_extent must be in [0,1], got %f", d.MinExtent)
	}
	if d.MaxSolidity < 0 || d.MaxSolidity > 1 {
		return fmt.Errorf("detection.max_solidity must be in [0,1], got %f", d.MaxSolidity)
	}
	if d.BGHistory < 1 {
		return fmt.Errorf("detection.bg_history must be >= 1")
	}
	if d.BGVarThreshold < 1 {
		return fmt.Errorf("detection.bg_var_threshold must be >= 1")
	}
	if d.BGLearningRate < 0 {
		return fmt.Errorf("detection.bg_learning_rate must be >= 0")
	}
	if d.BinaryThreshold < 0 || d.BinaryThreshold > 255 {
		return fmt.Errorf("detection.binary_threshold must be in [0,255]")
	}
	if d.GaussianBlurKernel%2 == 0 {
		return fmt.Errorf("detection.gaussian_blur_kernel_size must be odd, got %d", d.GaussianBlurKernel)
	}
	if d.Connectivity != 4 && d.Connectivity != 8 {
		return fmt.Errorf("detection.connectivity must be 4 or 8, got %d", d.Connectivity)
	}
	if d.ROIPositionRatio < 0 || d.ROIPositionRatio > 1 {
		return fmt.Errorf("detection.roi_position_ratio must be in [0,1]")
	}

	g := c.Gate
	if g.GateLinePositionRatio < 0 || g.GateLinePositionRatio > 1 {
		return fmt.Errorf("gate.gate_line_position_ratio must be in [0,1]")
	}
	if g.HistoryFrames < 1 {
		return fmt.Errorf("gate.gate_history_frames must be >= 1")
	}

	p := c.Packaging
	if p.TargetCount < 1 {
		return fmt.Errorf("packaging.target_count must be >= 1")
	}
	if !(0 < p.SpeedFullThreshold && p.SpeedFullThreshold < p.SpeedMediumThreshold &&
		p.SpeedMediumThreshold < p.SpeedSlowThreshold && p.SpeedSlowThreshold < 1.0) {
		return fmt.Errorf("packaging speed thresholds must satisfy 0 < full < medium < slow < 1")
	}
	if p.AdvanceStopCount < 0 {
		return fmt.Errorf("packaging.advance_stop_count must be >= 0")
	}
	for _, s := range []int{p.VibratorSpeedFull, p.VibratorSpeedMedium, p.VibratorSpeedSlow, p.VibratorSpeedCreep} {
		if s < 0 || s > 100 {
			return fmt.Errorf("vibrator speed percentages must be in [0,100]")
		}
	}

	t := c.Tracking
	if t.MinTrackFrames < 1 {
		return fmt.Errorf("tracking.min_track_frames must be >= 1")
	}
	if t.TrackLifetime < t.MinTrackFrames {
		return fmt.Errorf("tracking.track_lifetime must be >= min_track_frames")
	}
	if t.HistoryLength < 2 {
		return fmt.Errorf("tracking.history_length must be >= 2")
	}
	if t.MaxMissedFrames < 0 {
		return fmt.Errorf("tracking.max_missed_frames must be >= 0")
	}
	if t.DirectionConsistencyRatio < 0 || t.DirectionConsistencyRatio > 1 {
		return fmt.Errorf("tracking.direction_consistency_ratio must be in [0,1]")
	}

	return nil
}

// Clone returns a deep-enough copy for the mutator interface: every
// field is a value type, so a struct copy is already independent.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
