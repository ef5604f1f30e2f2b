package units

import (
	"fmt"
	"math"
	"sort"

	"github.com/mroshb/rallypoint/pkg/errors"
)

// Role groups unit types by how the combat resolver treats them.
type Role string

const (
	RoleInfantry Role = "infantry"
	RoleCavalry  Role = "cavalry"
	RoleScout    Role = "scout"
	RoleRam      Role = "ram"
	RoleCatapult Role = "catapult"
	RoleChief    Role = "chief"
)

type UnitType struct {
	ID                string  `yaml:"id" json:"id"`
	Name              string  `yaml:"name" json:"name"`
	Role              Role    `yaml:"role" json:"role"`
	Attack            float64 `yaml:"attack" json:"attack"`
	DefInfantry       float64 `yaml:"def_infantry" json:"defInfantry"`
	DefCavalry        float64 `yaml:"def_cavalry" json:"defCavalry"`
	SpeedTilesPerHour float64 `yaml:"speed" json:"speed"`
	Carry             int     `yaml:"carry" json:"carry"`
}

// Mounted reports whether the unit attacks with cavalry strength.
func (u UnitType) Mounted() bool {
	return u.Role == RoleCavalry || u.Role == RoleScout
}

type Catalog map[string]UnitType

// DefaultCatalog is the built-in unit roster. Rules files may override entries.
func DefaultCatalog() Catalog {
	list := []UnitType{
		{ID: "spearman", Name: "Spearman", Role: RoleInfantry, Attack: 10, DefInfantry: 35, DefCavalry: 60, SpeedTilesPerHour: 7, Carry: 60},
		{ID: "swordsman", Name: "Swordsman", Role: RoleInfantry, Attack: 40, DefInfantry: 35, DefCavalry: 20, SpeedTilesPerHour: 6, Carry: 40},
		{ID: "axeman", Name: "Axeman", Role: RoleInfantry, Attack: 60, DefInfantry: 30, DefCavalry: 30, SpeedTilesPerHour: 6, Carry: 50},
		{ID: "scout", Name: "Scout", Role: RoleScout, Attack: 0, DefInfantry: 10, DefCavalry: 5, SpeedTilesPerHour: 17, Carry: 0},
		{ID: "light_cavalry", Name: "Light Cavalry", Role: RoleCavalry, Attack: 120, DefInfantry: 30, DefCavalry: 40, SpeedTilesPerHour: 14, Carry: 80},
		{ID: "heavy_cavalry", Name: "Heavy Cavalry", Role: RoleCavalry, Attack: 150, DefInfantry: 200, DefCavalry: 80, SpeedTilesPerHour: 10, Carry: 50},
		{ID: "ram", Name: "Battering Ram", Role: RoleRam, Attack: 65, DefInfantry: 30, DefCavalry: 80, SpeedTilesPerHour: 4, Carry: 0},
		{ID: "catapult", Name: "Catapult", Role: RoleCatapult, Attack: 50, DefInfantry: 60, DefCavalry: 10, SpeedTilesPerHour: 3, Carry: 0},
		{ID: "chieftain", Name: "Chieftain", Role: RoleChief, Attack: 40, DefInfantry: 60, DefCavalry: 40, SpeedTilesPerHour: 4, Carry: 0},
	}
	c := make(Catalog, len(list))
	for _, u := range list {
		c[u.ID] = u
	}
	return c
}

// Merge returns a copy of c with overrides applied on top.
func (c Catalog) Merge(overrides []UnitType) Catalog {
	out := make(Catalog, len(c)+len(overrides))
	for id, u := range c {
		out[id] = u
	}
	for _, u := range overrides {
		out[u.ID] = u
	}
	return out
}

func (c Catalog) Validate() error {
	for id, u := range c {
		if id == "" || id != u.ID {
			return fmt.Errorf("unit catalog key %q does not match id %q", id, u.ID)
		}
		if u.SpeedTilesPerHour <= 0 {
			return fmt.Errorf("unit %q must have a positive speed", id)
		}
		if u.Attack < 0 || u.DefInfantry < 0 || u.DefCavalry < 0 {
			return fmt.Errorf("unit %q has negative stats", id)
		}
		switch u.Role {
		case RoleInfantry, RoleCavalry, RoleScout, RoleRam, RoleCatapult, RoleChief:
		default:
			return fmt.Errorf("unit %q has unknown role %q", id, u.Role)
		}
	}
	return nil
}

// Counts is a unit stack keyed by unit type id.
type Counts map[string]int

// Validate rejects unknown unit ids, negative quantities, and an empty stack.
func (c Counts) Validate(catalog Catalog) error {
	if c.Total() == 0 {
		return errors.New(errors.ErrCodeValidation, "at least one unit is required")
	}
	for id, n := range c {
		if _, ok := catalog[id]; !ok {
			return errors.Newf(errors.ErrCodeValidation, "unknown unit type %q", id)
		}
		if n < 0 {
			return errors.Newf(errors.ErrCodeValidation, "negative quantity for %q", id)
		}
	}
	return nil
}

func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		if n > 0 {
			total += n
		}
	}
	return total
}

// Clone drops zero entries.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for id, n := range c {
		if n != 0 {
			out[id] = n
		}
	}
	return out
}

func (c Counts) Add(other Counts) Counts {
	out := c.Clone()
	for id, n := range other {
		out[id] += n
	}
	return out.Clone()
}

// Sub subtracts other, flooring every entry at zero.
func (c Counts) Sub(other Counts) Counts {
	out := c.Clone()
	for id, n := range other {
		out[id] -= n
		if out[id] < 0 {
			out[id] = 0
		}
	}
	return out.Clone()
}

// Covers reports whether c holds at least the quantities requested in other.
func (c Counts) Covers(other Counts) bool {
	for id, n := range other {
		if n > c[id] {
			return false
		}
	}
	return true
}

func (c Counts) Equal(other Counts) bool {
	a, b := c.Clone(), other.Clone()
	if len(a) != len(b) {
		return false
	}
	for id, n := range a {
		if b[id] != n {
			return false
		}
	}
	return true
}

// Losses returns round(count*fraction) per unit, clamped to the stack size.
func (c Counts) Losses(fraction float64) Counts {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	out := make(Counts, len(c))
	for _, id := range c.IDs() {
		n := c[id]
		lost := int(math.Floor(float64(n)*fraction + 0.5))
		if lost > n {
			lost = n
		}
		if lost > 0 {
			out[id] = lost
		}
	}
	return out
}

// CountRole sums the units of the given role.
func (c Counts) CountRole(catalog Catalog, role Role) int {
	total := 0
	for id, n := range c {
		if u, ok := catalog[id]; ok && u.Role == role {
			total += n
		}
	}
	return total
}

// OnlyRole reports whether every unit in the stack has the role.
func (c Counts) OnlyRole(catalog Catalog, role Role) bool {
	for id, n := range c {
		if n > 0 && catalog[id].Role != role {
			return false
		}
	}
	return c.Total() > 0
}

// SlowestSpeed returns the speed of the slowest unit present, or 0 for an empty stack.
func (c Counts) SlowestSpeed(catalog Catalog) float64 {
	slowest := 0.0
	for id, n := range c {
		if n <= 0 {
			continue
		}
		u, ok := catalog[id]
		if !ok {
			continue
		}
		if slowest == 0 || u.SpeedTilesPerHour < slowest {
			slowest = u.SpeedTilesPerHour
		}
	}
	return slowest
}

// IDs returns the unit ids in sorted order for deterministic iteration.
func (c Counts) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
