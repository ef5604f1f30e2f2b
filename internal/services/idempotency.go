package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
)

// fingerprint hashes the canonical JSON form of v. Map keys are sorted by
// encoding/json, so equal requests always hash equally.
func fingerprint(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to fingerprint request")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

type targetFingerprint struct {
	Type      string `json:"type"`
	VillageID *uint  `json:"villageId,omitempty"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
}

func targetFingerprintOf(t movement.Target) targetFingerprint {
	var out targetFingerprint
	_ = movement.MatchTarget(t,
		func(v movement.VillageTarget) error {
			id := v.VillageID
			out = targetFingerprint{Type: movement.TargetTypeVillage, VillageID: &id}
			return nil
		},
		func(c movement.CoordsTarget) error {
			x, y := c.X, c.Y
			out = targetFingerprint{Type: movement.TargetTypeCoords, VillageID: c.VillageID, X: &x, Y: &y}
			return nil
		},
	)
	return out
}

type missionFingerprint struct {
	SourceVillageID uint              `json:"sourceVillageId"`
	AccountID       uint              `json:"accountId"`
	Mission         movement.Kind     `json:"mission"`
	Target          targetFingerprint `json:"target"`
	Units           units.Counts      `json:"units"`
	CatapultTargets []string          `json:"catapultTargets,omitempty"`
	ArriveAtMs      *int64            `json:"arriveAtMs,omitempty"`
	DepartAtMs      *int64            `json:"departAtMs,omitempty"`
}

func missionFingerprintOf(req SendMissionRequest) missionFingerprint {
	return missionFingerprint{
		SourceVillageID: req.SourceVillageID,
		AccountID:       req.AccountID,
		Mission:         req.Mission,
		Target:          targetFingerprintOf(req.Target),
		Units:           req.Units.Clone(),
		CatapultTargets: req.CatapultTargets,
		ArriveAtMs:      unixMilli(req.ArriveAt),
		DepartAtMs:      unixMilli(req.DepartAt),
	}
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
