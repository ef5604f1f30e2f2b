package movement

import (
	"github.com/mroshb/rallypoint/pkg/errors"
)

// Target is either a village or a raw map coordinate.
type Target interface {
	isTarget()
}

type VillageTarget struct {
	VillageID uint
}

type CoordsTarget struct {
	X, Y int
	// VillageID is set when the coordinates are known to hold a village.
	VillageID *uint
}

func (VillageTarget) isTarget() {}
func (CoordsTarget) isTarget()  {}

// MatchTarget calls exactly one of the handlers for t.
func MatchTarget(t Target, village func(VillageTarget) error, coords func(CoordsTarget) error) error {
	switch v := t.(type) {
	case VillageTarget:
		return village(v)
	case CoordsTarget:
		return coords(v)
	default:
		return errors.New(errors.ErrCodeValidation, "invalid target")
	}
}

const (
	TargetTypeVillage = "village"
	TargetTypeCoords  = "coords"
)

// TargetSpec is the JSON tagged union accepted on the wire.
type TargetSpec struct {
	Type            string `json:"type" validate:"required,oneof=village coords"`
	VillageID       *uint  `json:"villageId,omitempty"`
	X               *int   `json:"x,omitempty"`
	Y               *int   `json:"y,omitempty"`
	TargetVillageID *uint  `json:"targetVillageId,omitempty"`
}

// Target converts the wire form into a variant, rejecting mixed or incomplete shapes.
func (s TargetSpec) Target() (Target, error) {
	switch s.Type {
	case TargetTypeVillage:
		if s.VillageID == nil || *s.VillageID == 0 {
			return nil, errors.New(errors.ErrCodeValidation, "village target requires villageId")
		}
		if s.X != nil || s.Y != nil {
			return nil, errors.New(errors.ErrCodeValidation, "village target must not carry coordinates")
		}
		return VillageTarget{VillageID: *s.VillageID}, nil
	case TargetTypeCoords:
		if s.X == nil || s.Y == nil {
			return nil, errors.New(errors.ErrCodeValidation, "coords target requires x and y")
		}
		return CoordsTarget{X: *s.X, Y: *s.Y, VillageID: s.TargetVillageID}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown target type %q", s.Type)
	}
}
