package movement

import (
	"math"
	"sort"
	"time"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance is the Euclidean tile distance. A positive worldSize wraps both axes.
func Distance(a, b Point, worldSize int) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dy := math.Abs(float64(a.Y - b.Y))
	if worldSize > 0 {
		size := float64(worldSize)
		dx = math.Min(dx, size-dx)
		dy = math.Min(dy, size-dy)
	}
	return math.Hypot(dx, dy)
}

// TravelDuration rounds up to whole seconds and never returns less than one second.
func TravelDuration(distance, speedTilesPerHour, serverSpeed float64) time.Duration {
	if serverSpeed <= 0 {
		serverSpeed = 1
	}
	if speedTilesPerHour <= 0 {
		return 0
	}
	seconds := math.Ceil(distance / (speedTilesPerHour * serverSpeed) * 3600)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

type PrecisionTier struct {
	MinRallyLevel int   `yaml:"min_rally_level" json:"minRallyLevel"`
	WindowMs      int64 `yaml:"window_ms" json:"windowMs"`
}

// PrecisionConfig describes how finely a wave member's arrival can be placed.
type PrecisionConfig struct {
	Tiers          []PrecisionTier `yaml:"tiers"`
	DistanceStep   float64         `yaml:"distance_step"`
	DistanceFactor float64         `yaml:"distance_factor"`
}

func DefaultPrecision() PrecisionConfig {
	return PrecisionConfig{
		Tiers: []PrecisionTier{
			{MinRallyLevel: 0, WindowMs: 5000},
			{MinRallyLevel: 5, WindowMs: 2000},
			{MinRallyLevel: 10, WindowMs: 1000},
			{MinRallyLevel: 15, WindowMs: 500},
			{MinRallyLevel: 20, WindowMs: 100},
		},
		DistanceStep:   50,
		DistanceFactor: 0.5,
	}
}

// Window returns the arrival granularity for a rally point level at the given distance.
func (c PrecisionConfig) Window(distance float64, rallyLevel int) time.Duration {
	tiers := append([]PrecisionTier(nil), c.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinRallyLevel < tiers[j].MinRallyLevel })

	var windowMs int64 = 1000
	for _, t := range tiers {
		if rallyLevel >= t.MinRallyLevel {
			windowMs = t.WindowMs
		}
	}
	factor := 1.0
	if c.DistanceStep > 0 {
		factor += math.Floor(distance/c.DistanceStep) * c.DistanceFactor
	}
	ms := int64(math.Ceil(float64(windowMs) * factor))
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// QuantizeArrival rounds t to the nearest multiple of window on the Unix millisecond grid.
func QuantizeArrival(t time.Time, window time.Duration) time.Time {
	w := window.Milliseconds()
	if w <= 1 {
		return t.Truncate(time.Millisecond)
	}
	ms := t.UnixMilli()
	q := (ms + w/2) / w * w
	return time.UnixMilli(q).UTC()
}
