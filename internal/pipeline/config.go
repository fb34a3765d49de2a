package pipeline

import (
	"fmt"

	"skywatch/internal/detect"
	"skywatch/internal/track"
)

// Config carries every tunable of the detection pipeline. It is validated
// once at startup and can be swapped at runtime between frames; the new
// values take effect on the next frame.
type Config struct {
	// Handoff
	QueueDepth int `json:"queue_depth"`

	// Motion stage
	MotionLearningRate  float64 `json:"motion_learning_rate"`
	MotionThreshold     float64 `json:"motion_threshold"`
	LearningFrames      int     `json:"learning_frames"`
	GlobalMotionCeiling float64 `json:"global_motion_ceiling"`

	// Color stage. AnomalyPercentile is expressed in (0, 100): at 99
	// only pixels whose color bin falls in the rarest 1% of the observed
	// population are flagged. The rarity quantile handed to the stage is
	// 1 - percentile/100.
	ColorBins          int     `json:"color_bins"`
	AnomalyPercentile  float64 `json:"anomaly_percentile"`
	ColorLearningRate  float64 `json:"color_learning_rate"`
	ColorMinPopulation float64 `json:"color_min_population"`
	ColorCapFraction   float64 `json:"color_cap_fraction"`
	ColorDownsample    int     `json:"color_downsample"`

	// Fusion
	FusionMode   string  `json:"fusion_mode"`
	MotionWeight float64 `json:"motion_weight"`

	// Region filtering
	MinArea   int     `json:"min_area"`
	MaxArea   int     `json:"max_area"`
	MinAspect float64 `json:"min_aspect"`
	MaxAspect float64 `json:"max_aspect"`

	// Temporal confirmation
	ConfirmHits   int     `json:"confirm_hits"`
	MaxMisses     int     `json:"max_misses"`
	MatchDistance float64 `json:"match_distance"`
	Smoothing     float64 `json:"smoothing"`

	// Statistics
	StatsWindow int `json:"stats_window"`
}

// DefaultConfig returns the tuning used when nothing is configured. The
// values favor small, slow-moving targets seen from altitude.
func DefaultConfig() Config {
	return Config{
		QueueDepth:          1,
		MotionLearningRate:  0.05,
		MotionThreshold:     25,
		LearningFrames:      30,
		GlobalMotionCeiling: 0.5,
		ColorBins:           16,
		AnomalyPercentile:   98,
		ColorLearningRate:   0.1,
		ColorMinPopulation:  1,
		ColorCapFraction:    0.05,
		ColorDownsample:     2,
		FusionMode:          string(detect.FusionWeighted),
		MotionWeight:        0.6,
		MinArea:             15,
		MaxArea:             5000,
		MinAspect:           0.2,
		MaxAspect:           5.0,
		ConfirmHits:         3,
		MaxMisses:           5,
		MatchDistance:       50,
		Smoothing:           0.4,
		StatsWindow:         30,
	}
}

// Validate rejects configurations that would wedge or silence the
// pipeline rather than letting them fail obscurely at runtime.
func (c *Config) Validate() error {
	if c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be >= 1, got %d", c.QueueDepth)
	}
	if c.MotionLearningRate <= 0 || c.MotionLearningRate > 1 {
		return fmt.Errorf("motion_learning_rate must be in (0, 1], got %g", c.MotionLearningRate)
	}
	if c.MotionThreshold <= 0 {
		return fmt.Errorf("motion_threshold must be positive, got %g", c.MotionThreshold)
	}
	if c.LearningFrames < 1 {
		return fmt.Errorf("learning_frames must be >= 1, got %d", c.LearningFrames)
	}
	if c.GlobalMotionCeiling <= 0 || c.GlobalMotionCeiling > 1 {
		return fmt.Errorf("global_motion_ceiling must be in (0, 1], got %g", c.GlobalMotionCeiling)
	}
	if c.ColorBins < 2 || c.ColorBins > 64 {
		return fmt.Errorf("color_bins must be in [2, 64], got %d", c.ColorBins)
	}
	if c.AnomalyPercentile <= 0 || c.AnomalyPercentile >= 100 {
		return fmt.Errorf("anomaly_percentile must be in (0, 100), got %g", c.AnomalyPercentile)
	}
	if c.ColorLearningRate <= 0 || c.ColorLearningRate > 1 {
		return fmt.Errorf("color_learning_rate must be in (0, 1], got %g", c.ColorLearningRate)
	}
	if c.ColorDownsample < 1 {
		return fmt.Errorf("color_downsample must be >= 1, got %d", c.ColorDownsample)
	}
	if _, err := detect.ParseFusionMode(c.FusionMode); err != nil {
		return err
	}
	if c.MotionWeight < 0 || c.MotionWeight > 1 {
		return fmt.Errorf("motion_weight must be in [0, 1], got %g", c.MotionWeight)
	}
	if c.MinArea < 1 {
		return fmt.Errorf("min_area must be >= 1, got %d", c.MinArea)
	}
	if c.MaxArea != 0 && c.MaxArea < c.MinArea {
		return fmt.Errorf("max_area %d below min_area %d", c.MaxArea, c.MinArea)
	}
	if c.MinAspect < 0 || (c.MaxAspect != 0 && c.MaxAspect < c.MinAspect) {
		return fmt.Errorf("invalid aspect bounds [%g, %g]", c.MinAspect, c.MaxAspect)
	}
	if c.ConfirmHits < 1 {
		return fmt.Errorf("confirm_hits must be >= 1, got %d", c.ConfirmHits)
	}
	if c.MaxMisses < 1 {
		return fmt.Errorf("max_misses must be >= 1, got %d", c.MaxMisses)
	}
	if c.MatchDistance <= 0 {
		return fmt.Errorf("match_distance must be positive, got %g", c.MatchDistance)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %g", c.Smoothing)
	}
	if c.StatsWindow < 1 {
		return fmt.Errorf("stats_window must be >= 1, got %d", c.StatsWindow)
	}
	return nil
}

func (c *Config) motion() detect.MotionConfig {
	return detect.MotionConfig{
		LearningRate:  c.MotionLearningRate,
		Threshold:     c.MotionThreshold,
		LearnFrames:   c.LearningFrames,
		GlobalCeiling: c.GlobalMotionCeiling,
	}
}

func (c *Config) color() detect.ColorConfig {
	return detect.ColorConfig{
		Bins:          c.ColorBins,
		Percentile:    1 - c.AnomalyPercentile/100,
		LearningRate:  c.ColorLearningRate,
		MinPopulation: c.ColorMinPopulation,
		CapFraction:   c.ColorCapFraction,
		Downsample:    c.ColorDownsample,
	}
}

func (c *Config) components() detect.ComponentConfig {
	return detect.ComponentConfig{
		MinArea:   c.MinArea,
		MaxArea:   c.MaxArea,
		MinAspect: c.MinAspect,
		MaxAspect: c.MaxAspect,
	}
}

func (c *Config) tracking() track.Config {
	return track.Config{
		HitsToConfirm: c.ConfirmHits,
		MaxMisses:     c.MaxMisses,
		MatchDistance: c.MatchDistance,
		Smoothing:     c.Smoothing,
	}
}
