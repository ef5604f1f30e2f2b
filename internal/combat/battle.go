package combat

import (
	"fmt"
	"math"

	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/utils"
)

// CombatEnvironment describes the battlefield for one arrival.
type CombatEnvironment struct {
	WallType               string   `json:"wallType"`
	WallLevel              int      `json:"wallLevel"`
	Night                  bool     `json:"night"`
	AttackerSize           float64  `json:"attackerSize"`
	DefenderSize           *float64 `json:"defenderSize,omitempty"`
	DefenderAccountAgeDays *float64 `json:"defenderAccountAgeDays,omitempty"`
	RamTechLevel           int      `json:"ramTechLevel"`
	// TargetVanished marks an arrival at a village that no longer exists.
	TargetVanished bool `json:"targetVanished"`
}

type DefenderStack struct {
	StackID uint         `json:"stackId"`
	Units   units.Counts `json:"units"`
}

type BattleInput struct {
	Mission         movement.Kind
	Attackers       units.Counts
	Defenders       []DefenderStack
	Catalog         units.Catalog
	Env             CombatEnvironment
	Rules           Rules
	Seed            string
	Snapshot        *SiegeSnapshot
	CatapultMode    TargetingMode
	CatapultTargets []string
}

type StackOutcome struct {
	StackID   uint         `json:"stackId"`
	Losses    units.Counts `json:"losses"`
	Survivors units.Counts `json:"survivors"`
}

type BattleResult struct {
	Mission           movement.Kind   `json:"mission"`
	AttackerWon       bool            `json:"attackerWon"`
	Rounds            int             `json:"rounds"`
	Morale            float64         `json:"morale"`
	Luck              float64         `json:"luck"`
	AttackPower       float64         `json:"attackPower"`
	DefensePower      float64         `json:"defensePower"`
	AttackerLosses    units.Counts    `json:"attackerLosses"`
	AttackerSurvivors units.Counts    `json:"attackerSurvivors"`
	Defenders         []StackOutcome  `json:"defenders"`
	WallBefore        int             `json:"wallBefore"`
	WallAfter         int             `json:"wallAfter"`
	Catapult          *CatapultResult `json:"catapult,omitempty"`
	Notes             []string        `json:"notes"`
	Warnings          []string        `json:"warnings"`
}

// battlePolicy is filled per mission by the visitor below.
type battlePolicy struct {
	rounds     int
	winnerLoss func(k float64) float64
	loserLoss  func(k float64) float64
	scouting   bool
	siege      bool
}

type policyVisitor struct {
	rules BattleConfig
	p     *battlePolicy
}

func attackWinner(k float64) float64 { return k }
func attackLoser(float64) float64    { return 1 }
func raidWinner(k float64) float64   { return k / (1 + k) }
func raidLoser(k float64) float64    { return 1 / (1 + k) }

func (v policyVisitor) Attack() error {
	*v.p = battlePolicy{rounds: 1, winnerLoss: attackWinner, loserLoss: attackLoser, siege: true}
	return nil
}

func (v policyVisitor) Raid() error {
	*v.p = battlePolicy{rounds: 1, winnerLoss: raidWinner, loserLoss: raidLoser}
	return nil
}

func (v policyVisitor) Siege() error {
	*v.p = battlePolicy{rounds: v.rules.SiegeRounds, winnerLoss: raidWinner, loserLoss: raidLoser, siege: true}
	return nil
}

func (v policyVisitor) Scout() error {
	*v.p = battlePolicy{rounds: 1, scouting: true}
	return nil
}

func (v policyVisitor) Reinforce() error {
	return errors.New(errors.ErrCodeValidation, "reinforcements do not fight")
}

func (v policyVisitor) Return() error {
	return errors.New(errors.ErrCodeValidation, "returning troops do not fight")
}

// ResolveBattle runs the combat rounds for an offensive arrival and applies ram and
// catapult damage for the survivors.
func ResolveBattle(in BattleInput) (*BattleResult, error) {
	var policy battlePolicy
	if err := movement.Visit(in.Mission, policyVisitor{rules: in.Rules.Battle, p: &policy}); err != nil {
		return nil, err
	}
	if err := in.Attackers.Validate(in.Catalog); err != nil {
		return nil, err
	}

	res := &BattleResult{
		Mission:    in.Mission,
		WallBefore: in.Env.WallLevel,
		WallAfter:  in.Env.WallLevel,
		Notes:      []string{},
		Warnings:   []string{},
	}
	if in.Env.TargetVanished {
		res.Warnings = append(res.Warnings, errors.WarningTargetVanished)
		in.Defenders = nil
		in.Snapshot = nil
		in.Env.WallLevel = 0
		res.WallBefore, res.WallAfter = 0, 0
	}

	res.Morale = 1
	if !in.Env.TargetVanished {
		res.Morale = Morale(in.Mission, in.Env.AttackerSize, in.Env.DefenderSize, in.Env.DefenderAccountAgeDays, in.Rules.Morale)
	}
	rng := utils.SeededRand(in.Seed + ":luck")
	res.Luck = (rng.Float64()*2 - 1) * in.Rules.Battle.LuckRange

	if policy.scouting {
		resolveScouting(in, res)
		return res, nil
	}

	attackers := in.Attackers.Clone()
	stacks := make([]units.Counts, len(in.Defenders))
	for i, d := range in.Defenders {
		stacks[i] = d.Units.Clone()
	}

	attackerWon := false
	for round := 1; round <= policy.rounds; round++ {
		res.Rounds = round
		if defendersLeft(stacks) == 0 {
			attackerWon = true
			res.Notes = append(res.Notes, "no defenders present")
			break
		}

		attInf, attCav := attackPower(attackers, in.Catalog)
		att := (attInf + attCav) * res.Morale * (1 + res.Luck)
		if att <= 0 {
			attackerWon = false
			break
		}
		def := defensePower(stacks, in.Catalog, attInf, attCav, in.Env, in.Rules.Battle)
		if round == 1 {
			res.AttackPower, res.DefensePower = att, def
		}

		attackerWins := att > def
		winner, loser := math.Max(att, def), math.Min(att, def)
		k := math.Pow(loser/winner, in.Rules.Battle.LossExponent)

		attFrac, defFrac := policy.loserLoss(k), policy.winnerLoss(k)
		if attackerWins {
			attFrac, defFrac = policy.winnerLoss(k), policy.loserLoss(k)
		}

		attackers = attackers.Sub(attackers.Losses(attFrac))
		for i := range stacks {
			stacks[i] = stacks[i].Sub(stacks[i].Losses(defFrac))
		}
		attackerWon = attackerWins

		if attackers.Total() == 0 {
			attackerWon = false
			break
		}
		if defendersLeft(stacks) == 0 {
			attackerWon = true
			break
		}
	}

	res.AttackerWon = attackerWon
	res.AttackerSurvivors = attackers
	res.AttackerLosses = in.Attackers.Sub(attackers)
	res.Defenders = make([]StackOutcome, len(in.Defenders))
	for i, d := range in.Defenders {
		res.Defenders[i] = StackOutcome{
			StackID:   d.StackID,
			Losses:    d.Units.Sub(stacks[i]),
			Survivors: stacks[i],
		}
	}

	if policy.siege && attackerWon {
		if err := applySiege(in, res); err != nil {
			return nil, err
		}
	} else if in.Attackers.CountRole(in.Catalog, units.RoleRam)+in.Attackers.CountRole(in.Catalog, units.RoleCatapult) > 0 {
		if !policy.siege {
			res.Notes = append(res.Notes, fmt.Sprintf("%s missions do not damage buildings", in.Mission))
		} else {
			res.Notes = append(res.Notes, "siege engines did not fire: attack failed")
		}
	}
	return res, nil
}

func applySiege(in BattleInput, res *BattleResult) error {
	survivors := res.AttackerSurvivors

	rams := survivors.CountRole(in.Catalog, units.RoleRam)
	if rams > 0 && in.Env.WallLevel > 0 {
		drop := ComputeRamDrop(rams, in.Env.WallLevel, in.Env.WallType, in.Env.RamTechLevel, in.Rules.Ram)
		res.WallAfter = in.Env.WallLevel - drop
	}

	cats := survivors.CountRole(in.Catalog, units.RoleCatapult)
	if cats == 0 || in.Snapshot == nil {
		return nil
	}
	mode := in.CatapultMode
	if mode == "" {
		mode = ModeRandom
	}
	selections := in.CatapultTargets
	if len(selections) > mode.Slots() {
		selections = selections[:mode.Slots()]
	}
	cat, err := ResolveCatapultDamage(CatapultInput{
		Catapults:  cats,
		Mode:       mode,
		Selections: selections,
		Snapshot:   wallReduced(*in.Snapshot, in.Env.WallType, res.WallAfter),
		Rules:      in.Rules.Catapult,
		Seed:       in.Seed + ":catapult",
	})
	if err != nil {
		return err
	}
	res.Catapult = cat
	return nil
}

// wallReduced returns snap with any wall building lowered to level, so catapults
// aim at what the rams left standing.
func wallReduced(snap SiegeSnapshot, wallType string, level int) SiegeSnapshot {
	key := utils.UpperKey(wallType)
	out := snap
	out.Buildings = make([]Building, len(snap.Buildings))
	for i, b := range snap.Buildings {
		if (b.Type == "WALL" || (key != "" && b.Type == key)) && b.Level > level {
			b.Level = level
		}
		out.Buildings[i] = b
	}
	return out
}

// resolveScouting pits attacking scouts against defending scouts only.
func resolveScouting(in BattleInput, res *BattleResult) {
	res.Rounds = 1
	scouts := in.Attackers.CountRole(in.Catalog, units.RoleScout)
	defScouts := 0
	for _, d := range in.Defenders {
		defScouts += d.Units.CountRole(in.Catalog, units.RoleScout)
	}

	att := float64(scouts) * in.Rules.Battle.ScoutAttack * (1 + res.Luck)
	def := float64(defScouts) * in.Rules.Battle.ScoutDefense
	res.AttackPower, res.DefensePower = att, def

	frac := 0.0
	switch {
	case def == 0:
	case att <= def:
		frac = 1
	default:
		frac = math.Pow(def/att, in.Rules.Battle.LossExponent)
	}

	losses := in.Attackers.Losses(frac)
	res.AttackerLosses = losses
	res.AttackerSurvivors = in.Attackers.Sub(losses)
	res.AttackerWon = res.AttackerSurvivors.Total() > 0
	res.Defenders = make([]StackOutcome, len(in.Defenders))
	for i, d := range in.Defenders {
		res.Defenders[i] = StackOutcome{StackID: d.StackID, Losses: units.Counts{}, Survivors: d.Units.Clone()}
	}
}

func attackPower(c units.Counts, catalog units.Catalog) (infantry, cavalry float64) {
	for _, id := range c.IDs() {
		u := catalog[id]
		p := u.Attack * float64(c[id])
		if u.Mounted() {
			cavalry += p
		} else {
			infantry += p
		}
	}
	return infantry, cavalry
}

func defensePower(stacks []units.Counts, catalog units.Catalog, attInf, attCav float64, env CombatEnvironment, cfg BattleConfig) float64 {
	total := attInf + attCav
	infShare, cavShare := 0.5, 0.5
	if total > 0 {
		infShare, cavShare = attInf/total, attCav/total
	}

	def := cfg.BaseVillageDefense
	for _, s := range stacks {
		for _, id := range s.IDs() {
			u := catalog[id]
			n := float64(s[id])
			def += n * (u.DefInfantry*infShare + u.DefCavalry*cavShare)
		}
	}

	if bonus, ok := cfg.WallBonus[env.WallType]; ok && env.WallLevel > 0 {
		def *= math.Pow(bonus, float64(env.WallLevel))
	}
	if env.Night {
		def *= 1 + cfg.NightDefenseBonus
	}
	return def
}

func defendersLeft(stacks []units.Counts) int {
	total := 0
	for _, s := range stacks {
		total += s.Total()
	}
	return total
}
