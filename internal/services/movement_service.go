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
	"github.com/mroshb/rallypoint/internal/repositories"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/mroshb/rallypoint/pkg/utils"
	"gorm.io/gorm"
)

// Queue event types owned by the movement engine.
const (
	EventDepart = "movement.depart"
	EventArrive = "movement.arrive"
	EventReturn = "movement.return"
)

// Movement warnings that are not errors.
const (
	WarningCatapultTargetsIgnored = "catapult_targets_ignored"
	WarningSecondTargetIgnored    = "second_catapult_target_ignored"
	WarningHomeVanished           = "home_village_vanished"
)

type movementPayload struct {
	MovementID string `json:"movementId"`
}

// EventPublisher receives lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.MovementEvent) error
}

type Options struct {
	ServerSpeed       float64
	WorldSize         int
	RecallGrace       time.Duration
	WaveDefaultJitter time.Duration
	WaveMaxMembers    int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ServerSpeed:       cfg.ServerSpeed,
		WorldSize:         cfg.WorldSize,
		RecallGrace:       cfg.RecallGracePeriod,
		WaveDefaultJitter: time.Duration(cfg.WaveDefaultJitterMs) * time.Millisecond,
		WaveMaxMembers:    cfg.WaveMaxMembers,
	}
}

type Deps struct {
	DB        *gorm.DB
	Movements *repositories.MovementRepository
	Villages  *repositories.VillageRepository
	Reports   *repositories.ReportRepository
	Waves     *repositories.WaveRepository
	Queue     *queue.Store
	Rules     *config.RulesProvider
	Clock     utils.Clock
	Publisher EventPublisher
}

// NewDeps wires the repositories over db.
func NewDeps(db *gorm.DB, store *queue.Store, rules *config.RulesProvider, clock utils.Clock, pub EventPublisher) Deps {
	return Deps{
		DB:        db,
		Movements: repositories.NewMovementRepository(db),
		Villages:  repositories.NewVillageRepository(db),
		Reports:   repositories.NewReportRepository(db),
		Waves:     repositories.NewWaveRepository(db),
		Queue:     store,
		Rules:     rules,
		Clock:     clock,
		Publisher: pub,
	}
}

type MovementService struct {
	Deps
	opts Options
}

func NewMovementService(deps Deps, opts Options) *MovementService {
	if opts.ServerSpeed <= 0 {
		opts.ServerSpeed = 1
	}
	if deps.Clock == nil {
		deps.Clock = utils.SystemClock()
	}
	return &MovementService{Deps: deps, opts: opts}
}

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	tx        *gorm.DB
	movements *repositories.MovementRepository
	villages  *repositories.VillageRepository
	reports   *repositories.ReportRepository
	waves     *repositories.WaveRepository
}

func (s *MovementService) bind(tx *gorm.DB) txRepos {
	return txRepos{
		tx:        tx,
		movements: s.Movements.WithTx(tx),
		villages:  s.Villages.WithTx(tx),
		reports:   s.Reports.WithTx(tx),
		waves:     s.Waves.WithTx(tx),
	}
}

func (s *MovementService) inTx(ctx context.Context, fn func(r txRepos) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.bind(tx))
	})
}

func (s *MovementService) readRepos(ctx context.Context) txRepos {
	return s.bind(s.DB.WithContext(ctx))
}

type SendMissionRequest struct {
	SourceVillageID uint
	AccountID       uint
	Mission         movement.Kind
	Target          movement.Target
	Units           units.Counts
	CatapultTargets []string
	ArriveAt        *time.Time
	DepartAt        *time.Time
	IdempotencyKey  string
}

type SendMissionResult struct {
	Movement *models.Movement `json:"movement"`
	Warnings []string         `json:"warnings"`
	// Replayed is set when the idempotency key matched an earlier submission.
	Replayed bool `json:"-"`
}

// SendMission validates, reserves units, persists the movement and schedules its
// wake-up in one transaction.
func (s *MovementService) SendMission(ctx context.Context, req SendMissionRequest) (*SendMissionResult, error) {
	rules := s.Rules.Current()
	if err := validateMission(req, rules.Catalog); err != nil {
		return nil, err
	}
	hash, err := fingerprint(missionFingerprintOf(req))
	if err != nil {
		return nil, err
	}

	var result *SendMissionResult
	err = s.inTx(ctx, func(r txRepos) error {
		existing, err := r.movements.GetByIdempotencyKey(req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = replayMission(existing, hash)
			return err
		}

		plan, err := s.planMission(r, req.AccountID, req.SourceVillageID, req.Mission, req.Units, req.Target, rules)
		if err != nil {
			return err
		}
		departAt, arriveAt, err := s.scheduleDirect(plan.travel, req.DepartAt, req.ArriveAt)
		if err != nil {
			return err
		}

		m := plan.newMovement(req, hash, departAt, arriveAt)
		for _, w := range catapultWarnings(req, plan.source, rules.Combat.Catapult) {
			m.AddWarning(w)
		}
		if err := s.insertMovement(ctx, r, m, req.Units); err != nil {
			return err
		}
		result = &SendMissionResult{Movement: m, Warnings: nonNil(m.WarningList())}
		return nil
	})
	if errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		// A concurrent request with the same key won the insert.
		existing, lookupErr := s.readRepos(ctx).movements.GetByIdempotencyKey(req.IdempotencyKey)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		return replayMission(existing, hash)
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		logger.Info("Movement created",
			"movement_id", result.Movement.ID,
			"mission", result.Movement.Kind,
			"village_id", result.Movement.SourceVillageID,
			"status", result.Movement.Status,
			"arrive_at", result.Movement.ArriveAt,
		)
		s.publish(ctx, events.TypeCreated, result.Movement, nil)
	}
	return result, nil
}

func replayMission(existing *models.Movement, hash string) (*SendMissionResult, error) {
	if existing.PayloadHash != hash {
		return nil, errors.Newf(errors.ErrCodeIdempotencyConflict,
			"idempotency key %q was already used for a different request", existing.IdempotencyKey)
	}
	return &SendMissionResult{Movement: existing, Warnings: nonNil(existing.WarningList()), Replayed: true}, nil
}

func validateMission(req SendMissionRequest, catalog units.Catalog) error {
	if req.IdempotencyKey == "" {
		return errors.New(errors.ErrCodeValidation, "idempotency key is required")
	}
	if req.Target == nil {
		return errors.New(errors.ErrCodeValidation, "target is required")
	}
	if req.ArriveAt != nil && req.DepartAt != nil {
		return errors.New(errors.ErrCodeValidation, "give either arriveAt or departAt, not both")
	}
	return movement.ValidateSubmission(movement.Submission{
		Kind:            req.Mission,
		Units:           req.Units,
		CatapultTargets: req.CatapultTargets,
	}, catalog)
}

// catapultWarnings flags selections the source's rally point cannot honour.
func catapultWarnings(req SendMissionRequest, source *models.Village, rules combat.CatapultRules) []string {
	if len(req.CatapultTargets) == 0 {
		return nil
	}
	switch combat.ModeForRallyPoint(source.RallyPointLevel, rules) {
	case combat.ModeRandom:
		return []string{WarningCatapultTargetsIgnored}
	case combat.ModeOne:
		if len(req.CatapultTargets) > 1 {
			return []string{WarningSecondTargetIgnored}
		}
	}
	return nil
}

// missionPlan is the resolved geometry of a mission.
type missionPlan struct {
	kind          movement.Kind
	source        *models.Village
	targetVillage *models.Village
	from, to      movement.Point
	distance      float64
	travel        time.Duration
}

func (s *MovementService) planMission(r txRepos, accountID, sourceID uint, kind movement.Kind, counts units.Counts, target movement.Target, rules *config.GameRules) (*missionPlan, error) {
	source, err := r.villages.EnsureOwner(sourceID, accountID)
	if err != nil {
		return nil, err
	}
	plan := &missionPlan{kind: kind, source: source, from: movement.Point{X: source.X, Y: source.Y}}

	err = movement.MatchTarget(target,
		func(t movement.VillageTarget) error {
			v, err := r.villages.GetVillageByID(t.VillageID)
			if err != nil {
				return err
			}
			plan.targetVillage = v
			plan.to = movement.Point{X: v.X, Y: v.Y}
			return nil
		},
		func(t movement.CoordsTarget) error {
			plan.to = movement.Point{X: t.X, Y: t.Y}
			v, err := r.villages.GetVillageAt(t.X, t.Y)
			if err != nil {
				return err
			}
			if t.VillageID != nil && (v == nil || v.ID != *t.VillageID) {
				return errors.Newf(errors.ErrCodeValidation, "village %d is not at (%d,%d)", *t.VillageID, t.X, t.Y)
			}
			plan.targetVillage = v
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if plan.to == plan.from {
		return nil, errors.New(errors.ErrCodeValidation, "a village cannot target itself")
	}
	if kind == movement.KindReinforce && plan.targetVillage == nil {
		return nil, errors.New(errors.ErrCodeValidation, "reinforcements need a village to station in")
	}

	plan.distance = movement.Distance(plan.from, plan.to, s.opts.WorldSize)
	plan.travel = movement.TravelDuration(plan.distance, counts.SlowestSpeed(rules.Catalog), s.opts.ServerSpeed)
	return plan, nil
}

func (p *missionPlan) newMovement(req SendMissionRequest, hash string, departAt, arriveAt time.Time) *models.Movement {
	m := &models.Movement{
		IdempotencyKey:  req.IdempotencyKey,
		PayloadHash:     hash,
		Kind:            string(p.kind),
		AccountID:       req.AccountID,
		SourceVillageID: p.source.ID,
		TargetType:      movement.TargetTypeCoords,
		FromX:           p.from.X,
		FromY:           p.from.Y,
		ToX:             p.to.X,
		ToY:             p.to.Y,
		DepartAt:        departAt,
		ArriveAt:        arriveAt,
	}
	if _, ok := req.Target.(movement.VillageTarget); ok {
		m.TargetType = movement.TargetTypeVillage
	}
	if p.targetVillage != nil {
		id := p.targetVillage.ID
		m.TargetVillageID = &id
	}
	m.SetUnits(req.Units)
	m.SetCatapultTargets(req.CatapultTargets)
	return m
}

// scheduleDirect derives both ends of a single mission from whichever one was given.
func (s *MovementService) scheduleDirect(travel time.Duration, departAt, arriveAt *time.Time) (time.Time, time.Time, error) {
	now := s.Clock.Now()
	switch {
	case arriveAt != nil:
		depart := arriveAt.UTC().Add(-travel)
		if depart.Before(now) {
			return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeUnreachableArrival,
				"arrival at %s is unreachable, earliest possible is %s",
				arriveAt.UTC().Format(time.RFC3339), now.Add(travel).Format(time.RFC3339)).
				WithDetail("earliestArrival", now.Add(travel))
		}
		return depart, arriveAt.UTC(), nil
	case departAt != nil:
		if departAt.Before(now) {
			return time.Time{}, time.Time{}, errors.New(errors.ErrCodeValidation, "departAt is in the past")
		}
		return departAt.UTC(), departAt.UTC().Add(travel), nil
	default:
		return now, now.Add(travel), nil
	}
}

// insertMovement reserves units, persists m and enqueues its first wake-up.
func (s *MovementService) insertMovement(ctx context.Context, r txRepos, m *models.Movement, counts units.Counts) error {
	if err := r.villages.ReserveUnits(m.SourceVillageID, counts); err != nil {
		return err
	}

	eventType, at := EventArrive, m.ArriveAt
	m.Status = string(movement.StatusEnRoute)
	if m.DepartAt.After(s.Clock.Now()) {
		m.Status = string(movement.StatusScheduled)
		eventType, at = EventDepart, m.DepartAt
	}
	if err := r.movements.Create(m); err != nil {
		return err
	}
	return s.schedule(ctx, r, eventType, m.ID, at)
}

func (s *MovementService) schedule(ctx context.Context, r txRepos, eventType, movementID string, at time.Time) error {
	_, err := s.Queue.Enqueue(ctx, r.tx, queue.Item{
		Type:        eventType,
		ScheduledAt: at,
		Payload:     movementPayload{MovementID: movementID},
		DedupeKey:   eventType + ":" + movementID,
	})
	return err
}

// CancelMovement withdraws a movement that has not departed yet and refunds its units.
func (s *MovementService) CancelMovement(ctx context.Context, movementID string, accountID uint) (*models.Movement, error) {
	var m *models.Movement
	err := s.inTx(ctx, func(r txRepos) error {
		var err error
		m, err = r.movements.GetByIDForUpdate(movementID)
		if err != nil {
			return err
		}
		if m.AccountID != accountID {
			return errors.Newf(errors.ErrCodeForbidden, "movement %s belongs to another account", movementID)
		}
		if m.Status != string(movement.StatusScheduled) {
			return errors.Newf(errors.ErrCodeInvalidTransition, "only scheduled movements can be cancelled, this one is %s", m.Status)
		}
		counts, err := m.UnitCounts()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt movement")
		}
		now := s.Clock.Now()
		if err := r.movements.UpdateStatus(m, movement.StatusCancelled, map[string]interface{}{"resolved_at": now}); err != nil {
			return err
		}
		m.ResolvedAt = &now
		return r.villages.MergeUnits(m.AccountID, m.SourceVillageID, m.SourceVillageID, counts)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Movement cancelled", "movement_id", m.ID, "village_id", m.SourceVillageID)
	s.publish(ctx, events.TypeCancelled, m, nil)
	return m, nil
}

// publish never fails the caller: the state change is already committed.
func (s *MovementService) publish(ctx context.Context, typ events.Type, m *models.Movement, decorate func(*events.MovementEvent)) {
	if s.Publisher == nil {
		return
	}
	ev := events.MovementEvent{
		Type:            typ,
		MovementID:      m.ID,
		Mission:         m.Kind,
		Status:          m.Status,
		AccountID:       m.AccountID,
		SourceVillageID: m.SourceVillageID,
		TargetVillageID: m.TargetVillageID,
		WaveGroupID:     m.WaveGroupID,
		ReportID:        m.ReportID,
		Warnings:        m.WarningList(),
		ArriveAt:        m.ArriveAt,
		OccurredAt:      s.Clock.Now(),
	}
	if decorate != nil {
		decorate(&ev)
	}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish movement event", "type", typ, "movement_id", m.ID, "error", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
