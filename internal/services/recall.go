package services

import (
	"context"
	"math"
	"time"

	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
)

type RecallRequest struct {
	FromVillageID uint
	ToVillageID   uint
	AccountID     uint
	// Units selects the movement carrying exactly these units; empty picks the latest.
	Units          units.Counts
	IdempotencyKey string
}

type recallFingerprint struct {
	FromVillageID uint         `json:"fromVillageId"`
	ToVillageID   uint         `json:"toVillageId"`
	AccountID     uint         `json:"accountId"`
	Units         units.Counts `json:"units,omitempty"`
}

// RecallReinforcements turns an en-route reinforcement around before the grace
// deadline. The original is cancelled and a returning movement takes the units home
// from wherever they are now.
func (s *MovementService) RecallReinforcements(ctx context.Context, req RecallRequest) (*models.Movement, error) {
	if req.FromVillageID == 0 || req.ToVillageID == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "both villages are required")
	}
	if len(req.Units) > 0 {
		if err := req.Units.Validate(s.Rules.Current().Catalog); err != nil {
			return nil, err
		}
	}
	hash, err := fingerprint(recallFingerprint{req.FromVillageID, req.ToVillageID, req.AccountID, req.Units.Clone()})
	if err != nil {
		return nil, err
	}

	var (
		ret      *models.Movement
		original *models.Movement
		replayed bool
	)
	err = s.inTx(ctx, func(r txRepos) error {
		if req.IdempotencyKey != "" {
			existing, err := r.movements.GetByIdempotencyKey(req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.PayloadHash != hash {
					return errors.Newf(errors.ErrCodeIdempotencyConflict,
						"idempotency key %q was already used for a different request", req.IdempotencyKey)
				}
				ret, replayed = existing, true
				return nil
			}
		}

		if _, err := r.villages.EnsureOwner(req.FromVillageID, req.AccountID); err != nil {
			return err
		}
		candidates, err := r.movements.FindRecallable(req.AccountID, req.FromVillageID, req.ToVillageID)
		if err != nil {
			return err
		}
		m, err := pickRecallable(candidates, req.Units)
		if err != nil {
			return err
		}
		if m.Status != string(movement.StatusEnRoute) {
			return errors.Newf(errors.ErrCodeInvalidTransition, "movement %s has not departed yet, cancel it instead", m.ID)
		}

		now := s.Clock.Now()
		deadline := m.DepartAt.Add(s.opts.RecallGrace)
		if !now.Before(deadline) {
			return errors.Newf(errors.ErrCodeRecallWindowExpired,
				"recall window closed at %s", deadline.Format(time.RFC3339)).
				WithDetail("deadline", deadline)
		}

		counts, err := m.UnitCounts()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt movement")
		}
		if err := r.movements.UpdateStatus(m, movement.StatusCancelled, map[string]interface{}{"resolved_at": now}); err != nil {
			return err
		}
		m.ResolvedAt = &now

		elapsed := now.Sub(m.DepartAt)
		key := req.IdempotencyKey
		if key == "" {
			key = "recall:" + m.ID
		}
		ret = newReturnMovement(m, key, counts, positionAt(m, now), now, now.Add(elapsed))
		ret.PayloadHash = hash
		if err := r.movements.Create(ret); err != nil {
			return err
		}
		original = m
		return s.schedule(ctx, r, EventReturn, ret.ID, ret.ArriveAt)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return ret, nil
	}

	logger.Info("Reinforcements recalled",
		"movement_id", original.ID,
		"return_id", ret.ID,
		"village_id", req.FromVillageID,
		"arrive_at", ret.ArriveAt,
	)
	s.publish(ctx, events.TypeRecalled, ret, nil)
	return ret, nil
}

func pickRecallable(candidates []models.Movement, want units.Counts) (*models.Movement, error) {
	for i := range candidates {
		if len(want) == 0 {
			return &candidates[i], nil
		}
		have, err := candidates[i].UnitCounts()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "corrupt movement")
		}
		if have.Equal(want) {
			return &candidates[i], nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "no matching reinforcements are on the way")
}

// positionAt interpolates where a movement is at t, rounded to the nearest tile.
func positionAt(m *models.Movement, t time.Time) movement.Point {
	total := m.ArriveAt.Sub(m.DepartAt)
	if total <= 0 {
		return movement.Point{X: m.FromX, Y: m.FromY}
	}
	f := float64(t.Sub(m.DepartAt)) / float64(total)
	f = math.Max(0, math.Min(1, f))
	return movement.Point{
		X: m.FromX + int(math.Round(f*float64(m.ToX-m.FromX))),
		Y: m.FromY + int(math.Round(f*float64(m.ToY-m.FromY))),
	}
}
