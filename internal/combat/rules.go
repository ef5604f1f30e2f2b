package combat

import (
	"fmt"
	"time"
)

type MoraleConfig struct {
	Exponent   float64         `yaml:"exponent" json:"exponent"`
	MinAttMult float64         `yaml:"min_att_mult" json:"minAttMult"`
	MaxAttMult float64         `yaml:"max_att_mult" json:"maxAttMult"`
	SizeFloor  float64         `yaml:"size_floor" json:"sizeFloor"`
	TimeFloor  TimeFloorConfig `yaml:"time_floor" json:"timeFloor"`
}

// TimeFloorConfig raises the morale floor for long-lived defenders.
type TimeFloorConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	TargetFloor    float64 `yaml:"target_floor" json:"targetFloor"`
	FullEffectDays float64 `yaml:"full_effect_days" json:"fullEffectDays"`
}

type RamConfig struct {
	Alpha             float64            `yaml:"alpha" json:"alpha"`
	Beta              float64            `yaml:"beta" json:"beta"`
	Gamma             float64            `yaml:"gamma" json:"gamma"`
	TechBonusPerLevel float64            `yaml:"tech_bonus_per_level" json:"techBonusPerLevel"`
	MaxTechLevel      int                `yaml:"max_tech_level" json:"maxTechLevel"`
	WallResistance    map[string]float64 `yaml:"wall_resistance" json:"wallResistance"`
}

const (
	SelectionRandom       = "random"
	SelectionHighestLevel = "highest_level"

	CapitalFloor = "floor"
	CapitalBlock = "block"
	CapitalNone  = "none"
)

type FieldRule struct {
	Enabled              bool    `yaml:"enabled" json:"enabled"`
	ResilienceMultiplier float64 `yaml:"resilience_multiplier" json:"resilienceMultiplier"`
}

type CapitalProtection struct {
	Mode               string   `yaml:"mode" json:"mode"`
	FloorLevel         int      `yaml:"floor_level" json:"floorLevel"`
	ProtectFields      bool     `yaml:"protect_fields" json:"protectFields"`
	ProtectedBuildings []string `yaml:"protected_buildings" json:"protectedBuildings"`
}

type WorldWonderRule struct {
	MaxDropPerSiege int      `yaml:"max_drop_per_siege" json:"maxDropPerSiege"`
	CappedTypes     []string `yaml:"capped_types" json:"cappedTypes"`
}

// CatapultRules holds selection policy, floors and caps for siege resolution.
type CatapultRules struct {
	DropAlpha       float64           `yaml:"drop_alpha" json:"dropAlpha"`
	DropBeta        float64           `yaml:"drop_beta" json:"dropBeta"`
	SelectionPolicy string            `yaml:"selection_policy" json:"selectionPolicy"`
	OneTargetLevel  int               `yaml:"one_target_level" json:"oneTargetLevel"`
	TwoTargetsLevel int               `yaml:"two_targets_level" json:"twoTargetsLevel"`
	FieldRule       FieldRule         `yaml:"field_rule" json:"fieldRule"`
	Capital         CapitalProtection `yaml:"capital" json:"capital"`
	WorldWonder     WorldWonderRule   `yaml:"world_wonder" json:"worldWonder"`
	BuildingFloors  map[string]int    `yaml:"building_floors" json:"buildingFloors"`
	Modifiers       CatapultModifiers `yaml:"modifiers" json:"modifiers"`
}

// CatapultModifiers are per building type damage divisors (>1 means sturdier).
type CatapultModifiers struct {
	BuildingResilience map[string]float64 `yaml:"building_resilience" json:"buildingResilience"`
}

type BattleConfig struct {
	BaseVillageDefense float64            `yaml:"base_village_defense" json:"baseVillageDefense"`
	WallBonus          map[string]float64 `yaml:"wall_bonus" json:"wallBonus"`
	NightDefenseBonus  float64            `yaml:"night_defense_bonus" json:"nightDefenseBonus"`
	LuckRange          float64            `yaml:"luck_range" json:"luckRange"`
	LossExponent       float64            `yaml:"loss_exponent" json:"lossExponent"`
	SiegeRounds        int                `yaml:"siege_rounds" json:"siegeRounds"`
	ScoutAttack        float64            `yaml:"scout_attack" json:"scoutAttack"`
	ScoutDefense       float64            `yaml:"scout_defense" json:"scoutDefense"`
	// Night bonus applies to arrivals in [NightStartHour, NightEndHour) UTC; equal hours disable it.
	NightStartHour int `yaml:"night_start_hour" json:"nightStartHour"`
	NightEndHour   int `yaml:"night_end_hour" json:"nightEndHour"`
}

// IsNight reports whether an arrival at t gets the night defence bonus.
func (b BattleConfig) IsNight(t time.Time) bool {
	if b.NightStartHour == b.NightEndHour {
		return false
	}
	h := t.UTC().Hour()
	if b.NightStartHour < b.NightEndHour {
		return h >= b.NightStartHour && h < b.NightEndHour
	}
	return h >= b.NightStartHour || h < b.NightEndHour
}

type Rules struct {
	Morale   MoraleConfig  `yaml:"morale" json:"morale"`
	Ram      RamConfig     `yaml:"ram" json:"ram"`
	Catapult CatapultRules `yaml:"catapult" json:"catapult"`
	Battle   BattleConfig  `yaml:"battle" json:"battle"`
}

const (
	WallCity  = "city_wall"
	WallEarth = "earth_wall"
	WallStone = "stone_wall"
	WallPali  = "palisade"
)

func DefaultRules() Rules {
	return Rules{
		Morale: MoraleConfig{
			Exponent:   0.2,
			MinAttMult: 0.667,
			MaxAttMult: 1.0,
			SizeFloor:  100,
			TimeFloor: TimeFloorConfig{
				TargetFloor:    0.9,
				FullEffectDays: 180,
			},
		},
		Ram: RamConfig{
			Alpha:             0.5,
			Beta:              0.75,
			Gamma:             0.5,
			TechBonusPerLevel: 0.025,
			MaxTechLevel:      20,
			WallResistance: map[string]float64{
				WallCity:  1.0,
				WallPali:  0.8,
				WallStone: 1.3,
				WallEarth: 1.6,
			},
		},
		Catapult: CatapultRules{
			DropAlpha:       0.6,
			DropBeta:        0.7,
			SelectionPolicy: SelectionRandom,
			OneTargetLevel:  10,
			TwoTargetsLevel: 20,
			FieldRule: FieldRule{
				Enabled:              true,
				ResilienceMultiplier: 1.5,
			},
			Capital: CapitalProtection{
				Mode:               CapitalFloor,
				FloorLevel:         1,
				ProtectFields:      true,
				ProtectedBuildings: []string{"MAIN_BUILDING", "WAREHOUSE", "GRANARY"},
			},
			WorldWonder: WorldWonderRule{
				MaxDropPerSiege: 1,
				CappedTypes:     []string{"WORLD_WONDER"},
			},
			BuildingFloors: map[string]int{"PALACE": 1},
		},
		Battle: BattleConfig{
			BaseVillageDefense: 10,
			WallBonus: map[string]float64{
				WallCity:  1.030,
				WallPali:  1.025,
				WallStone: 1.028,
				WallEarth: 1.020,
			},
			NightDefenseBonus: 0.5,
			LuckRange:         0.25,
			LossExponent:      1.5,
			SiegeRounds:       3,
			ScoutAttack:       35,
			ScoutDefense:      20,
		},
	}
}

func (r Rules) Validate() error {
	m := r.Morale
	if m.Exponent <= 0 {
		return fmt.Errorf("morale.exponent must be positive")
	}
	if m.MinAttMult <= 0 || m.MinAttMult > m.MaxAttMult {
		return fmt.Errorf("morale bounds must satisfy 0 < min_att_mult <= max_att_mult")
	}
	if m.MaxAttMult < 1 {
		return fmt.Errorf("morale.max_att_mult must be at least 1")
	}
	if m.TimeFloor.Enabled {
		if m.TimeFloor.FullEffectDays <= 0 {
			return fmt.Errorf("morale.time_floor.full_effect_days must be positive")
		}
		if m.TimeFloor.TargetFloor < m.MinAttMult || m.TimeFloor.TargetFloor > m.MaxAttMult {
			return fmt.Errorf("morale.time_floor.target_floor must lie within the morale bounds")
		}
	}
	if r.Ram.Alpha <= 0 || r.Ram.Beta <= 0 || r.Ram.Gamma < 0 {
		return fmt.Errorf("ram curve parameters must be positive")
	}
	for wall, res := range r.Ram.WallResistance {
		if res <= 0 {
			return fmt.Errorf("ram.wall_resistance[%s] must be positive", wall)
		}
	}
	c := r.Catapult
	if c.DropAlpha <= 0 || c.DropBeta <= 0 || c.DropBeta > 1 {
		return fmt.Errorf("catapult drop curve must satisfy alpha > 0 and 0 < beta <= 1")
	}
	switch c.SelectionPolicy {
	case SelectionRandom, SelectionHighestLevel:
	default:
		return fmt.Errorf("catapult.selection_policy %q is not supported", c.SelectionPolicy)
	}
	switch c.Capital.Mode {
	case CapitalFloor, CapitalBlock, CapitalNone:
	default:
		return fmt.Errorf("catapult.capital.mode %q is not supported", c.Capital.Mode)
	}
	if c.Capital.FloorLevel < 0 || c.WorldWonder.MaxDropPerSiege < 0 {
		return fmt.Errorf("catapult floors and caps must not be negative")
	}
	if c.OneTargetLevel > c.TwoTargetsLevel {
		return fmt.Errorf("catapult.one_target_level must not exceed two_targets_level")
	}
	b := r.Battle
	if b.LuckRange < 0 || b.LuckRange >= 1 {
		return fmt.Errorf("battle.luck_range must be in [0, 1)")
	}
	if b.LossExponent <= 0 || b.SiegeRounds < 1 {
		return fmt.Errorf("battle.loss_exponent must be positive and siege_rounds at least 1")
	}
	if b.NightStartHour < 0 || b.NightStartHour > 23 || b.NightEndHour < 0 || b.NightEndHour > 23 {
		return fmt.Errorf("battle night hours must be in [0, 23]")
	}
	return nil
}
