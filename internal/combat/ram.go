package combat

import "math"

// ComputeRamDrop returns how many wall levels survivingRams knock down.
// The result is always within [0, wallLevel].
func ComputeRamDrop(survivingRams, wallLevel int, wallType string, ramTechLevel int, cfg RamConfig) int {
	if survivingRams <= 0 || wallLevel <= 0 {
		return 0
	}

	if ramTechLevel < 0 {
		ramTechLevel = 0
	}
	if cfg.MaxTechLevel > 0 && ramTechLevel > cfg.MaxTechLevel {
		ramTechLevel = cfg.MaxTechLevel
	}

	resistance := 1.0
	if r, ok := cfg.WallResistance[wallType]; ok && r > 0 {
		resistance = r
	}

	effective := float64(survivingRams) * (1 + cfg.TechBonusPerLevel*float64(ramTechLevel)) / resistance
	raw := cfg.Alpha * math.Pow(effective, cfg.Beta) / math.Pow(float64(wallLevel), cfg.Gamma)

	drop := int(math.Floor(raw))
	if drop < 0 {
		return 0
	}
	if drop > wallLevel {
		return wallLevel
	}
	return drop
}
