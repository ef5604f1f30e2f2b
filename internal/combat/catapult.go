package combat

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/utils"
)

type TargetingMode string

const (
	ModeRandom TargetingMode = "random"
	ModeOne    TargetingMode = "one"
	ModeTwo    TargetingMode = "two"
)

// Slots is how many independent target slots the mode fires at.
func (m TargetingMode) Slots() int {
	if m == ModeTwo {
		return 2
	}
	return 1
}

func (m TargetingMode) Valid() bool {
	return m == ModeRandom || m == ModeOne || m == ModeTwo
}

// ModeForRallyPoint derives the targeting mode from the attacker's rally point level.
func ModeForRallyPoint(level int, rules CatapultRules) TargetingMode {
	switch {
	case level >= rules.TwoTargetsLevel:
		return ModeTwo
	case level >= rules.OneTargetLevel:
		return ModeOne
	default:
		return ModeRandom
	}
}

// SplitShots divides catapults across the mode's slots (ceil/floor for two targets).
func SplitShots(catapults int, mode TargetingMode) []int {
	if mode == ModeTwo {
		first := (catapults + 1) / 2
		return []int{first, catapults - first}
	}
	return []int{catapults}
}

type TargetKind string

const (
	TargetBuilding TargetKind = "building"
	TargetField    TargetKind = "field"
)

type CatapultInput struct {
	Catapults  int
	Mode       TargetingMode
	Selections []string
	Snapshot   SiegeSnapshot
	Rules      CatapultRules
	Seed       string
	// ShotsSplit overrides SplitShots when set; one entry per slot.
	ShotsSplit []int
}

type TargetDamage struct {
	Slot        int        `json:"slot"`
	TargetID    string     `json:"targetId"`
	TargetKind  TargetKind `json:"targetKind"`
	TargetType  string     `json:"targetType"`
	Shots       int        `json:"shots"`
	BeforeLevel int        `json:"beforeLevel"`
	AfterLevel  int        `json:"afterLevel"`
	Drop        int        `json:"drop"`
	Notes       []string   `json:"notes"`
}

type CatapultResult struct {
	Mode    TargetingMode  `json:"mode"`
	Targets []TargetDamage `json:"targets"`
	Notes   []string       `json:"notes"`
}

type siegeTarget struct {
	id       string
	kind     TargetKind
	typ      string
	resource string
	slot     int
}

type catapultResolver struct {
	in     CatapultInput
	levels map[string]int
	all    []siegeTarget
	hit    map[string]bool
}

// ResolveCatapultDamage computes per-slot level drops. Identical inputs always give
// identical results; the only randomness source is in.Seed.
func ResolveCatapultDamage(in CatapultInput) (*CatapultResult, error) {
	if in.Catapults < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "catapult count must not be negative")
	}
	if !in.Mode.Valid() {
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown targeting mode %q", in.Mode)
	}

	result := &CatapultResult{Mode: in.Mode, Targets: []TargetDamage{}, Notes: []string{}}
	if in.Catapults == 0 {
		return result, nil
	}

	slots := in.Mode.Slots()
	split := in.ShotsSplit
	if len(split) == 0 {
		split = SplitShots(in.Catapults, in.Mode)
	}
	if len(split) != slots {
		return nil, errors.Newf(errors.ErrCodeValidation, "shots split has %d entries, mode %s needs %d", len(split), in.Mode, slots)
	}
	total := 0
	for _, s := range split {
		if s < 0 {
			return nil, errors.New(errors.ErrCodeValidation, "shots split must not be negative")
		}
		total += s
	}
	if total > in.Catapults {
		return nil, errors.Newf(errors.ErrCodeValidation, "shots split uses %d catapults, only %d present", total, in.Catapults)
	}
	if len(in.Selections) > slots {
		return nil, errors.Newf(errors.ErrCodeValidation, "mode %s accepts at most %d selections", in.Mode, slots)
	}
	if in.Mode == ModeRandom && len(in.Selections) > 0 {
		result.Notes = append(result.Notes, "rally point does not allow aimed fire; selections ignored")
	}

	r := newCatapultResolver(in)
	rng := utils.SeededRand(in.Seed)

	for slot := 0; slot < slots; slot++ {
		shots := split[slot]
		if shots == 0 {
			result.Notes = append(result.Notes, fmt.Sprintf("slot %d: no catapults assigned", slot+1))
			continue
		}

		notes := []string{}
		var target *siegeTarget
		if in.Mode != ModeRandom && slot < len(in.Selections) {
			var reason string
			target, reason = r.resolveToken(in.Selections[slot])
			if target == nil {
				notes = append(notes, fmt.Sprintf("selection %q %s; random target chosen", in.Selections[slot], reason))
			}
		}
		if target == nil {
			target = r.fallback(rng.IntN)
		}
		if target == nil {
			result.Notes = append(result.Notes, fmt.Sprintf("slot %d: no eligible target", slot+1))
			continue
		}

		dmg := r.apply(*target, shots)
		dmg.Slot = slot + 1
		dmg.Notes = append(notes, dmg.Notes...)
		result.Targets = append(result.Targets, dmg)
		r.hit[target.id] = true
	}
	return result, nil
}

func newCatapultResolver(in CatapultInput) *catapultResolver {
	r := &catapultResolver{
		in:     in,
		levels: make(map[string]int),
		hit:    make(map[string]bool),
	}

	buildings := append([]Building(nil), in.Snapshot.Buildings...)
	sort.Slice(buildings, func(i, j int) bool { return buildings[i].ID < buildings[j].ID })
	for _, b := range buildings {
		r.all = append(r.all, siegeTarget{id: b.ID, kind: TargetBuilding, typ: strings.ToUpper(b.Type)})
		r.levels[b.ID] = b.Level
	}

	fields := append([]ResourceField(nil), in.Snapshot.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	for _, f := range fields {
		r.all = append(r.all, siegeTarget{
			id:       f.ID,
			kind:     TargetField,
			typ:      strings.ToLower(f.Resource),
			resource: strings.ToLower(f.Resource),
			slot:     f.Slot,
		})
		r.levels[f.ID] = f.Level
	}
	return r
}

// resolveToken maps a selection to a concrete target, or returns the reason it cannot.
func (r *catapultResolver) resolveToken(token string) (*siegeTarget, string) {
	token = utils.NormalizeToken(token)
	if token == "" {
		return nil, "is empty"
	}

	if resource, slotStr, ok := strings.Cut(token, ":"); ok {
		if !r.in.Rules.FieldRule.Enabled {
			return nil, "targets a resource field but field targeting is disabled"
		}
		slot, err := strconv.Atoi(slotStr)
		if err != nil {
			return nil, "has an invalid slot"
		}
		for i := range r.all {
			t := &r.all[i]
			if t.kind == TargetField && t.resource == resource && t.slot == slot {
				if reason := r.ineligibleReason(*t); reason != "" {
					return nil, reason
				}
				return t, ""
			}
		}
		return nil, "does not match a resource field"
	}

	key := utils.UpperKey(token)
	var best *siegeTarget
	for i := range r.all {
		t := &r.all[i]
		if t.kind != TargetBuilding || t.typ != key {
			continue
		}
		if best == nil || r.levels[t.id] > r.levels[best.id] {
			best = t
		}
	}
	if best == nil {
		return nil, "does not match a building"
	}
	if reason := r.ineligibleReason(*best); reason != "" {
		return nil, reason
	}
	return best, ""
}

// fallback picks among eligible targets not yet hit, per the selection policy.
func (r *catapultResolver) fallback(intn func(int) int) *siegeTarget {
	var candidates []siegeTarget
	for _, t := range r.all {
		if r.hit[t.id] || !r.eligible(t) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil
	}

	if r.in.Rules.SelectionPolicy == SelectionHighestLevel {
		sort.SliceStable(candidates, func(i, j int) bool {
			li, lj := r.levels[candidates[i].id], r.levels[candidates[j].id]
			if li != lj {
				return li > lj
			}
			if candidates[i].kind != candidates[j].kind {
				return candidates[i].kind == TargetBuilding
			}
			return candidates[i].id < candidates[j].id
		})
		return &candidates[0]
	}
	pick := candidates[intn(len(candidates))]
	return &pick
}

func (r *catapultResolver) eligible(t siegeTarget) bool {
	return r.ineligibleReason(t) == ""
}

func (r *catapultResolver) ineligibleReason(t siegeTarget) string {
	if t.kind == TargetField && !r.in.Rules.FieldRule.Enabled {
		return "targets a resource field but field targeting is disabled"
	}
	if r.capitalBlocked(t) {
		return "is shielded by capital protection"
	}
	if floor, _ := r.floor(t); r.levels[t.id] <= floor {
		return "is already at its floor"
	}
	return ""
}

func (r *catapultResolver) capitalProtected(t siegeTarget) bool {
	cp := r.in.Rules.Capital
	if !r.in.Snapshot.IsCapital || cp.Mode == CapitalNone || cp.Mode == "" {
		return false
	}
	if t.kind == TargetField {
		return cp.ProtectFields
	}
	for _, b := range cp.ProtectedBuildings {
		if strings.EqualFold(b, t.typ) {
			return true
		}
	}
	return false
}

func (r *catapultResolver) capitalBlocked(t siegeTarget) bool {
	return r.in.Rules.Capital.Mode == CapitalBlock && r.capitalProtected(t)
}

// floor returns the lowest level t may be reduced to and which rule set it.
func (r *catapultResolver) floor(t siegeTarget) (int, string) {
	floor, source := 0, ""
	if t.kind == TargetBuilding {
		if f, ok := r.in.Rules.BuildingFloors[t.typ]; ok && f > floor {
			floor, source = f, "building"
		}
	}
	if r.in.Rules.Capital.Mode == CapitalFloor && r.capitalProtected(t) && r.in.Rules.Capital.FloorLevel > floor {
		floor, source = r.in.Rules.Capital.FloorLevel, "capital"
	}
	return floor, source
}

func (r *catapultResolver) worldWonderCapped(t siegeTarget) bool {
	if r.in.Snapshot.Kind != VillageWorldWonder || t.kind != TargetBuilding {
		return false
	}
	for _, typ := range r.in.Rules.WorldWonder.CappedTypes {
		if strings.EqualFold(typ, t.typ) {
			return true
		}
	}
	return false
}

// rawDrop is the diminishing-returns curve alpha * shots^beta.
func rawDrop(shots int, rules CatapultRules) int {
	if shots <= 0 {
		return 0
	}
	return int(math.Floor(rules.DropAlpha * math.Pow(float64(shots), rules.DropBeta)))
}

func (r *catapultResolver) apply(t siegeTarget, shots int) TargetDamage {
	rules := r.in.Rules
	before := r.levels[t.id]
	dmg := TargetDamage{
		TargetID:    t.id,
		TargetKind:  t.kind,
		TargetType:  t.typ,
		Shots:       shots,
		BeforeLevel: before,
		AfterLevel:  before,
		Notes:       []string{},
	}

	drop := rawDrop(shots, rules)

	if t.kind == TargetField && rules.FieldRule.ResilienceMultiplier > 1 {
		drop = int(math.Floor(float64(drop) / rules.FieldRule.ResilienceMultiplier))
		dmg.Notes = append(dmg.Notes, fmt.Sprintf("field resilience x%.2f applied", rules.FieldRule.ResilienceMultiplier))
	}
	if t.kind == TargetBuilding {
		if res, ok := rules.Modifiers.BuildingResilience[t.typ]; ok && res > 1 {
			drop = int(math.Floor(float64(drop) / res))
			dmg.Notes = append(dmg.Notes, fmt.Sprintf("building resilience x%.2f applied", res))
		}
	}

	if r.worldWonderCapped(t) && drop > rules.WorldWonder.MaxDropPerSiege {
		drop = rules.WorldWonder.MaxDropPerSiege
		dmg.Notes = append(dmg.Notes, fmt.Sprintf("world wonder drop cap of %d applied", rules.WorldWonder.MaxDropPerSiege))
	}

	after := before - drop
	if floor, source := r.floor(t); after < floor {
		after = floor
		switch source {
		case "capital":
			dmg.Notes = append(dmg.Notes, fmt.Sprintf("capital protection floor %d applied", floor))
		default:
			dmg.Notes = append(dmg.Notes, fmt.Sprintf("building floor %d applied", floor))
		}
	}
	if after > before {
		after = before
	}
	if after < 0 {
		after = 0
	}

	dmg.AfterLevel = after
	dmg.Drop = before - after
	r.levels[t.id] = after
	return dmg
}
