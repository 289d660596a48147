package domain

import (
	"errors"
	"math"
)

// Level is a congestion tier.
type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelUnknown Level = "unknown"
)

// Levels lists every tier in display order.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh, LevelUnknown}

type levelStyle struct {
	color string
	label string
	width int
}

var levelStyles = map[Level]levelStyle{
	LevelLow:     {color: "#00ff00", label: "Free flowing", width: 3},
	LevelMedium:  {color: "#ffff00", label: "Slightly congested", width: 4},
	LevelHigh:    {color: "#ff0000", label: "Congested", width: 5},
	LevelUnknown: {color: "#808080", label: "No data", width: 2},
}

// Color returns the display colour for the level.
func (l Level) Color() string { return levelStyles[l].color }

// Label returns the human-readable category for the level.
func (l Level) Label() string { return levelStyles[l].label }

// Width returns the display line width for the level.
func (l Level) Width() int { return levelStyles[l].width }

// Valid reports whether l is one of the four tiers.
func (l Level) Valid() bool {
	_, ok := levelStyles[l]
	return ok
}

// Thresholds are the speed boundaries (km/h) between congestion tiers.
type Thresholds struct {
	HighSpeed   float64 `json:"high_speed"`
	MediumSpeed float64 `json:"medium_speed"`
}

// DefaultThresholds returns high_speed=30, medium_speed=20.
func DefaultThresholds() Thresholds {
	return Thresholds{HighSpeed: 30, MediumSpeed: 20}
}

// Validate rejects negative or inverted thresholds.
func (t Thresholds) Validate() error {
	if t.HighSpeed < 0 || t.MediumSpeed < 0 {
		return errors.New("congestion thresholds must not be negative")
	}
	if t.MediumSpeed > t.HighSpeed {
		return errors.New("medium speed threshold must not exceed high speed threshold")
	}
	return nil
}

// LevelFor maps a representative speed to a tier. Rules are evaluated in
// order and the first match wins.
func LevelFor(speed *float64, t Thresholds) Level {
	switch {
	case speed == nil || math.IsNaN(*speed) || math.IsInf(*speed, 0):
		return LevelUnknown
	case *speed >= t.HighSpeed:
		return LevelLow
	case *speed >= t.MediumSpeed:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Classify assigns the congestion tier and display style to a segment.
func Classify(seg AggregatedSegment, t Thresholds) ClassifiedSegment {
	level := LevelFor(seg.MeanSpeed, t)
	return ClassifiedSegment{
		AggregatedSegment: seg,
		Level:             level,
		Color:             level.Color(),
		Label:             level.Label(),
		Width:             level.Width(),
	}
}

// ClassifyAll classifies every segment, preserving order.
func ClassifyAll(segs []AggregatedSegment, t Thresholds) []ClassifiedSegment {
	out := make([]ClassifiedSegment, len(segs))
	for i := range segs {
		out[i] = Classify(segs[i], t)
	}
	return out
}
