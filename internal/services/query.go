package services

import (
	"context"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/repositories"
	"github.com/mroshb/rallypoint/pkg/errors"
)

type MovementQuery struct {
	AccountID uint
	VillageID uint
	Direction string
	Status    string
	Mission   string
	Limit     int
}

// ListMovements returns movements touching a village the account controls, by arrival time.
func (s *MovementService) ListMovements(ctx context.Context, q MovementQuery) ([]models.Movement, error) {
	switch q.Direction {
	case "", models.DirectionIncoming, models.DirectionOutgoing:
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown direction %q", q.Direction)
	}
	if q.Status != "" {
		if _, err := movement.ParseStatus(q.Status); err != nil {
			return nil, err
		}
	}
	if q.Mission != "" {
		if _, err := movement.ParseKind(q.Mission); err != nil {
			return nil, err
		}
	}
	if q.VillageID == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "village id is required")
	}

	r := s.readRepos(ctx)
	if _, err := r.villages.EnsureOwner(q.VillageID, q.AccountID); err != nil {
		return nil, err
	}
	return r.movements.List(repositories.MovementFilter{
		VillageID: q.VillageID,
		Direction: q.Direction,
		Status:    q.Status,
		Mission:   q.Mission,
		Limit:     q.Limit,
	})
}

// GetMovement returns a movement its sender or the owner of its target can see.
func (s *MovementService) GetMovement(ctx context.Context, id string, accountID uint) (*models.Movement, error) {
	r := s.readRepos(ctx)
	m, err := r.movements.GetByID(id)
	if err != nil {
		return nil, err
	}
	if m.AccountID == accountID {
		return m, nil
	}
	if m.TargetVillageID != nil {
		if v, err := r.villages.GetVillageUnscoped(*m.TargetVillageID); err == nil && v.OwnerID == accountID {
			return m, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeNotFound, "movement %s not found", id)
}

func (s *MovementService) GetReport(ctx context.Context, id string, accountID uint) (*models.CombatReport, error) {
	report, err := s.readRepos(ctx).reports.GetByID(id)
	if err != nil {
		return nil, err
	}
	if report.AttackerAccountID == accountID {
		return report, nil
	}
	if report.DefenderAccountID != nil && *report.DefenderAccountID == accountID {
		return report, nil
	}
	return nil, errors.Newf(errors.ErrCodeNotFound, "report %s not found", id)
}

func (s *MovementService) ListReports(ctx context.Context, accountID uint, limit int) ([]models.CombatReport, error) {
	return s.readRepos(ctx).reports.ListForAccount(accountID, limit)
}
