package movement

import (
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
)

// Kind is the persisted mission discriminator.
type Kind string

const (
	KindAttack    Kind = "attack"
	KindRaid      Kind = "raid"
	KindSiege     Kind = "siege"
	KindScout     Kind = "scout"
	KindReinforce Kind = "reinforce"
	KindReturn    Kind = "return"
)

// MaxCatapultTargets is the most explicit catapult selections a movement can carry.
const MaxCatapultTargets = 2

// Visitor has one method per mission kind. Adding a kind means adding a method here,
// which breaks every implementation until the new kind is handled.
type Visitor interface {
	Attack() error
	Raid() error
	Siege() error
	Scout() error
	Reinforce() error
	Return() error
}

// Visit dispatches k to the matching visitor method.
func Visit(k Kind, v Visitor) error {
	switch k {
	case KindAttack:
		return v.Attack()
	case KindRaid:
		return v.Raid()
	case KindSiege:
		return v.Siege()
	case KindScout:
		return v.Scout()
	case KindReinforce:
		return v.Reinforce()
	case KindReturn:
		return v.Return()
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown mission %q", k)
	}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if err := Visit(k, noopVisitor{}); err != nil {
		return "", err
	}
	return k, nil
}

type noopVisitor struct{}

func (noopVisitor) Attack() error    { return nil }
func (noopVisitor) Raid() error      { return nil }
func (noopVisitor) Siege() error     { return nil }
func (noopVisitor) Scout() error     { return nil }
func (noopVisitor) Reinforce() error { return nil }
func (noopVisitor) Return() error    { return nil }

// Offensive reports whether arrival triggers combat.
func (k Kind) Offensive() bool {
	offensive := false
	_ = Visit(k, offenseVisitor{&offensive})
	return offensive
}

type offenseVisitor struct{ out *bool }

func (v offenseVisitor) Attack() error    { *v.out = true; return nil }
func (v offenseVisitor) Raid() error      { *v.out = true; return nil }
func (v offenseVisitor) Siege() error     { *v.out = true; return nil }
func (v offenseVisitor) Scout() error     { *v.out = true; return nil }
func (v offenseVisitor) Reinforce() error { return nil }
func (v offenseVisitor) Return() error    { return nil }

// FiresCatapults reports whether surviving catapults damage the target on arrival.
func (k Kind) FiresCatapults() bool {
	return k == KindAttack || k == KindSiege
}

// Submission is what a client asks for before it becomes a persisted movement.
type Submission struct {
	Kind            Kind
	Units           units.Counts
	CatapultTargets []string
}

// ValidateSubmission applies the per-mission payload rules.
func ValidateSubmission(s Submission, catalog units.Catalog) error {
	if err := s.Units.Validate(catalog); err != nil {
		return err
	}
	if len(s.CatapultTargets) > MaxCatapultTargets {
		return errors.Newf(errors.ErrCodeValidation, "at most %d catapult targets are allowed", MaxCatapultTargets)
	}
	return Visit(s.Kind, &submissionValidator{s: s, catalog: catalog})
}

type submissionValidator struct {
	s       Submission
	catalog units.Catalog
}

func (v *submissionValidator) catapultTargets() error {
	if len(v.s.CatapultTargets) > 0 && v.s.Units.CountRole(v.catalog, units.RoleCatapult) == 0 {
		return errors.New(errors.ErrCodeValidation, "catapult targets require at least one catapult")
	}
	return nil
}

func (v *submissionValidator) noCatapultTargets() error {
	if len(v.s.CatapultTargets) > 0 {
		return errors.Newf(errors.ErrCodeValidation, "%s missions cannot select catapult targets", v.s.Kind)
	}
	return nil
}

func (v *submissionValidator) Attack() error { return v.catapultTargets() }

func (v *submissionValidator) Raid() error { return v.noCatapultTargets() }

func (v *submissionValidator) Siege() error {
	if v.s.Units.CountRole(v.catalog, units.RoleRam)+v.s.Units.CountRole(v.catalog, units.RoleCatapult) == 0 {
		return errors.New(errors.ErrCodeValidation, "siege missions need rams or catapults")
	}
	return v.catapultTargets()
}

func (v *submissionValidator) Scout() error {
	if !v.s.Units.OnlyRole(v.catalog, units.RoleScout) {
		return errors.New(errors.ErrCodeValidation, "scout missions may only contain scouts")
	}
	return v.noCatapultTargets()
}

func (v *submissionValidator) Reinforce() error { return v.noCatapultTargets() }

func (v *submissionValidator) Return() error {
	return errors.New(errors.ErrCodeValidation, "return movements are created by the engine")
}
