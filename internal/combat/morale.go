package combat

import (
	"math"

	"github.com/mroshb/rallypoint/internal/movement"
)

// Morale returns the attack multiplier for an attacker of attackerSize points hitting a
// defender of defenderSize points. A nil or zero defender size (barbarians, abandoned
// villages) means no morale penalty. defenderAgeDays feeds the optional time floor.
func Morale(mission movement.Kind, attackerSize float64, defenderSize, defenderAgeDays *float64, cfg MoraleConfig) float64 {
	if mission == movement.KindScout {
		return 1
	}
	if defenderSize == nil || *defenderSize <= 0 {
		return 1
	}

	att := math.Max(attackerSize, cfg.SizeFloor)
	def := math.Max(*defenderSize, cfg.SizeFloor)
	if att <= def {
		return 1
	}

	morale := math.Pow(def/att, cfg.Exponent)
	morale = clamp(morale, cfg.MinAttMult, cfg.MaxAttMult)

	if cfg.TimeFloor.Enabled && defenderAgeDays != nil && cfg.TimeFloor.FullEffectDays > 0 {
		progress := clamp(*defenderAgeDays/cfg.TimeFloor.FullEffectDays, 0, 1)
		dynamicFloor := cfg.MinAttMult + (cfg.TimeFloor.TargetFloor-cfg.MinAttMult)*progress
		morale = math.Max(morale, dynamicFloor)
	}
	return morale
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
