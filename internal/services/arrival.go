package services

import (
	"context"
	"time"

	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/mroshb/rallypoint/internal/config"
	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/queue"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
)

// RegisterHandlers binds the movement wake-ups to a queue worker.
func (s *MovementService) RegisterHandlers(w *queue.Worker) {
	w.Register(EventDepart, s.HandleDepart)
	w.Register(EventArrive, s.HandleArrive)
	w.Register(EventReturn, s.HandleReturn)
}

func decodeMovementID(item *models.EventQueueItem) (string, error) {
	var p movementPayload
	if err := queue.DecodePayload(item, &p); err != nil {
		return "", err
	}
	if p.MovementID == "" {
		return "", errors.Newf(errors.ErrCodeValidation, "event %d has no movement id", item.ID)
	}
	return p.MovementID, nil
}

// HandleDepart moves a scheduled movement onto the road. Cancelled movements are skipped.
func (s *MovementService) HandleDepart(ctx context.Context, item *models.EventQueueItem) error {
	id, err := decodeMovementID(item)
	if err != nil {
		return err
	}

	var departed *models.Movement
	err = s.inTx(ctx, func(r txRepos) error {
		m, err := r.movements.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if m.Status != string(movement.StatusScheduled) {
			logger.Debug("Skipping departure", "movement_id", id, "status", m.Status, "event_id", item.ID)
			return nil
		}
		if err := r.movements.UpdateStatus(m, movement.StatusEnRoute, nil); err != nil {
			return err
		}
		departed = m
		return s.schedule(ctx, r, EventArrive, m.ID, m.ArriveAt)
	})
	if err != nil || departed == nil {
		return err
	}

	logger.Info("Movement departed", "movement_id", departed.ID, "village_id", departed.SourceVillageID, "event_id", item.ID)
	s.publish(ctx, events.TypeDeparted, departed, nil)
	return nil
}

// HandleArrive resolves an en-route movement at its target. Anything else is a no-op,
// which keeps redelivered events harmless.
func (s *MovementService) HandleArrive(ctx context.Context, item *models.EventQueueItem) error {
	id, err := decodeMovementID(item)
	if err != nil {
		return err
	}

	var res *arrivalResolver
	err = s.inTx(ctx, func(r txRepos) error {
		m, err := r.movements.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if m.Status != string(movement.StatusEnRoute) {
			logger.Debug("Skipping arrival", "movement_id", id, "status", m.Status, "event_id", item.ID)
			return nil
		}

		resolver, err := s.newArrivalResolver(r, m)
		if err != nil {
			return err
		}
		if err := movement.Visit(movement.Kind(m.Kind), resolver); err != nil {
			return err
		}
		if err := resolver.finish(ctx); err != nil {
			return err
		}
		res = resolver
		return nil
	})
	if err != nil || res == nil {
		return err
	}

	logger.Info("Movement resolved",
		"movement_id", res.m.ID,
		"mission", res.m.Kind,
		"village_id", res.m.SourceVillageID,
		"event_id", item.ID,
		"warnings", res.m.WarningList(),
	)
	s.publish(ctx, events.TypeResolved, res.m, func(ev *events.MovementEvent) {
		ev.AttackerWon = res.attackerWon
	})
	if res.ret != nil {
		s.publish(ctx, events.TypeCreated, res.ret, nil)
	}
	return nil
}

// HandleReturn merges returning troops into their home garrison.
func (s *MovementService) HandleReturn(ctx context.Context, item *models.EventQueueItem) error {
	id, err := decodeMovementID(item)
	if err != nil {
		return err
	}

	var done *models.Movement
	err = s.inTx(ctx, func(r txRepos) error {
		m, err := r.movements.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if m.Status != string(movement.StatusReturning) {
			logger.Debug("Skipping return", "movement_id", id, "status", m.Status, "event_id", item.ID)
			return nil
		}
		counts, err := m.UnitCounts()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt movement")
		}

		_, err = r.villages.GetVillageByID(m.SourceVillageID)
		switch {
		case errors.HasCode(err, errors.ErrCodeNotFound):
			// Nowhere to go home to; the troops are lost.
			m.AddWarning(WarningHomeVanished)
		case err != nil:
			return err
		default:
			if err := r.villages.MergeUnits(m.AccountID, m.SourceVillageID, m.SourceVillageID, counts); err != nil {
				return err
			}
		}

		now := s.Clock.Now()
		if err := r.movements.UpdateStatus(m, movement.StatusDone, map[string]interface{}{
			"resolved_at": now,
			"warnings":    m.Warnings,
		}); err != nil {
			return err
		}
		m.ResolvedAt = &now
		done = m
		return nil
	})
	if err != nil || done == nil {
		return err
	}

	logger.Info("Movement returned", "movement_id", done.ID, "village_id", done.SourceVillageID, "event_id", item.ID)
	s.publish(ctx, events.TypeReturned, done, nil)
	return nil
}

// arrivalResolver applies one arrival. It visits the mission kind, so adding a
// mission fails to compile until its arrival is handled here.
type arrivalResolver struct {
	s      *MovementService
	r      txRepos
	m      *models.Movement
	rules  *config.GameRules
	counts units.Counts
	target *models.Village
	// vanished is set when the movement aimed at a village that no longer exists.
	vanished bool

	survivors   units.Counts
	attackerWon *bool
	reportID    *string
	ret         *models.Movement
}

func (s *MovementService) newArrivalResolver(r txRepos, m *models.Movement) (*arrivalResolver, error) {
	counts, err := m.UnitCounts()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "corrupt movement")
	}
	a := &arrivalResolver{s: s, r: r, m: m, rules: s.Rules.Current(), counts: counts}

	if m.TargetVillageID != nil {
		v, err := r.villages.GetVillageByID(*m.TargetVillageID)
		switch {
		case errors.HasCode(err, errors.ErrCodeNotFound):
			a.vanished = true
		case err != nil:
			return nil, err
		default:
			a.target = v
		}
	}
	return a, nil
}

func (a *arrivalResolver) Attack() error { return a.fight() }
func (a *arrivalResolver) Raid() error   { return a.fight() }
func (a *arrivalResolver) Siege() error  { return a.fight() }
func (a *arrivalResolver) Scout() error  { return a.fight() }

func (a *arrivalResolver) Reinforce() error {
	if a.target == nil {
		a.m.AddWarning(errors.WarningTargetVanished)
		a.survivors = a.counts
		return nil
	}
	return a.r.villages.MergeUnits(a.m.AccountID, a.m.SourceVillageID, a.target.ID, a.counts)
}

func (a *arrivalResolver) Return() error {
	return errors.Newf(errors.ErrCodeInvalidTransition, "return movement %s cannot arrive as an offensive", a.m.ID)
}

func (a *arrivalResolver) fight() error {
	source, err := a.r.villages.GetVillageUnscoped(a.m.SourceVillageID)
	if err != nil {
		return err
	}
	attacker, err := a.r.villages.GetAccount(a.m.AccountID)
	if err != nil {
		return err
	}

	kind := movement.Kind(a.m.Kind)
	in := combat.BattleInput{
		Mission:   kind,
		Attackers: a.counts,
		Catalog:   a.rules.Catalog,
		Rules:     a.rules.Combat,
		Seed:      a.m.ID,
		Env: combat.CombatEnvironment{
			WallType:       combat.WallCity,
			Night:          a.rules.Combat.Battle.IsNight(a.m.ArriveAt),
			AttackerSize:   float64(attacker.Points),
			RamTechLevel:   source.RamTechLevel,
			TargetVanished: a.vanished,
		},
		CatapultMode:    combat.ModeForRallyPoint(source.RallyPointLevel, a.rules.Combat.Catapult),
		CatapultTargets: a.m.CatapultTargetList(),
	}

	var stacks []models.UnitStack
	var defender *models.Account
	if a.target != nil {
		in.Env.WallType = a.target.WallType
		in.Env.WallLevel = a.target.WallLevel
		if a.target.OwnerID != 0 {
			defender, err = a.r.villages.GetAccount(a.target.OwnerID)
			if err != nil {
				return err
			}
			size := float64(defender.Points)
			age := a.m.ArriveAt.Sub(defender.CreatedAt).Hours() / 24
			if age < 0 {
				age = 0
			}
			in.Env.DefenderSize = &size
			in.Env.DefenderAccountAgeDays = &age
		}

		stacks, err = a.r.villages.StationedStacks(a.target.ID)
		if err != nil {
			return err
		}
		for _, st := range stacks {
			c, err := st.Counts()
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt unit stack")
			}
			in.Defenders = append(in.Defenders, combat.DefenderStack{StackID: st.ID, Units: c})
		}

		if kind.FiresCatapults() {
			snap, err := a.r.villages.Snapshot(a.target)
			if err != nil {
				return err
			}
			in.Snapshot = &snap
		}
	}

	result, err := combat.ResolveBattle(in)
	if err != nil {
		return err
	}
	if err := a.applyBattle(result, stacks); err != nil {
		return err
	}

	report := &models.CombatReport{
		MovementID:        a.m.ID,
		Mission:           a.m.Kind,
		AttackerAccountID: a.m.AccountID,
		AttackerVillageID: a.m.SourceVillageID,
		AttackerWon:       result.AttackerWon,
		Seed:              in.Seed,
		OccurredAt:        a.m.ArriveAt,
	}
	if a.target != nil {
		id := a.target.ID
		report.DefenderVillageID = &id
		if defender != nil {
			did := defender.ID
			report.DefenderAccountID = &did
		}
	}
	report.SetResult(result)
	if err := a.r.reports.Create(report); err != nil {
		return err
	}

	won := result.AttackerWon
	a.attackerWon = &won
	a.reportID = &report.ID
	a.survivors = result.AttackerSurvivors
	for _, w := range result.Warnings {
		a.m.AddWarning(w)
	}
	return nil
}

func (a *arrivalResolver) applyBattle(result *combat.BattleResult, stacks []models.UnitStack) error {
	byID := make(map[uint]*models.UnitStack, len(stacks))
	for i := range stacks {
		byID[stacks[i].ID] = &stacks[i]
	}
	for _, outcome := range result.Defenders {
		st, ok := byID[outcome.StackID]
		if !ok || outcome.Losses.Total() == 0 {
			continue
		}
		if err := a.r.villages.SetStackCounts(st, outcome.Survivors); err != nil {
			return err
		}
	}

	if a.target == nil {
		return nil
	}
	if result.WallAfter != result.WallBefore {
		if err := a.r.villages.SetWallLevel(a.target.ID, result.WallAfter); err != nil {
			return err
		}
	}
	if result.Catapult != nil {
		if err := a.r.villages.ApplyCatapultDamage(a.target.ID, result.Catapult.Targets); err != nil {
			return err
		}
	}
	return nil
}

// finish resolves the movement and sends any survivors home.
func (a *arrivalResolver) finish(ctx context.Context) error {
	now := a.s.Clock.Now()
	updates := map[string]interface{}{
		"resolved_at": now,
		"warnings":    a.m.Warnings,
	}
	if a.reportID != nil {
		updates["report_id"] = *a.reportID
		a.m.ReportID = a.reportID
	}
	if err := a.r.movements.UpdateStatus(a.m, movement.StatusResolved, updates); err != nil {
		return err
	}
	a.m.ResolvedAt = &now

	if a.survivors.Total() == 0 {
		return nil
	}
	travel := movement.TravelDuration(
		movement.Distance(movement.Point{X: a.m.ToX, Y: a.m.ToY}, movement.Point{X: a.m.FromX, Y: a.m.FromY}, a.s.opts.WorldSize),
		a.survivors.SlowestSpeed(a.rules.Catalog),
		a.s.opts.ServerSpeed,
	)
	ret := newReturnMovement(a.m, "return:"+a.m.ID, a.survivors, movement.Point{X: a.m.ToX, Y: a.m.ToY}, a.m.ArriveAt, a.m.ArriveAt.Add(travel))
	if a.vanished {
		ret.AddWarning(errors.WarningTargetVanished)
	}
	if err := a.r.movements.Create(ret); err != nil {
		return err
	}
	a.ret = ret
	return a.s.schedule(ctx, a.r, EventReturn, ret.ID, ret.ArriveAt)
}

// newReturnMovement heads from a point back to parent's source village.
func newReturnMovement(parent *models.Movement, key string, counts units.Counts, from movement.Point, departAt, arriveAt time.Time) *models.Movement {
	home := parent.SourceVillageID
	parentID := parent.ID
	m := &models.Movement{
		IdempotencyKey:  key,
		Kind:            string(movement.KindReturn),
		Status:          string(movement.StatusReturning),
		AccountID:       parent.AccountID,
		SourceVillageID: home,
		TargetType:      movement.TargetTypeVillage,
		TargetVillageID: &home,
		FromX:           from.X,
		FromY:           from.Y,
		ToX:             parent.FromX,
		ToY:             parent.FromY,
		DepartAt:        departAt,
		ArriveAt:        arriveAt,
		ParentID:        &parentID,
		WaveGroupID:     parent.WaveGroupID,
	}
	m.SetUnits(counts)
	return m
}
