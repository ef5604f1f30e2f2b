package services

import (
	"testing"
	"time"

	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMission_AttackLifecycle(t *testing.T) {
	h := newHarness(t)
	w := h.world
	sent := units.Counts{"axeman": 1000}

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindAttack,
		Target:          villageTarget(w.DefenderVillage),
		Units:           sent,
		IdempotencyKey:  "attack-1",
	})
	require.NoError(t, err)
	m := res.Movement
	travel := h.travel(w.AttackerVillage, w.DefenderVillage, sent)

	assert.Equal(t, string(movement.StatusEnRoute), m.Status)
	assert.True(t, m.DepartAt.Equal(epoch))
	assert.True(t, m.ArriveAt.Equal(epoch.Add(travel)))
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1000, h.garrison(w.AttackerVillage.ID)["axeman"])

	item, err := h.svc.Queue.GetByDedupeKey(h.ctx, EventArrive+":"+m.ID)
	require.NoError(t, err)
	assert.True(t, item.ScheduledAt.Equal(m.ArriveAt))

	// Nothing happens before arrival.
	h.advanceTo(m.ArriveAt.Add(-time.Second))
	assert.Equal(t, string(movement.StatusEnRoute), h.movement(m.ID).Status)

	h.advanceTo(m.ArriveAt)
	resolved := h.movement(m.ID)
	assert.Equal(t, string(movement.StatusResolved), resolved.Status)
	require.NotNil(t, resolved.ReportID)
	require.NotNil(t, resolved.ResolvedAt)

	report, err := h.svc.GetReport(h.ctx, *resolved.ReportID, w.Defender.ID)
	require.NoError(t, err)
	assert.True(t, report.AttackerWon)
	assert.Equal(t, m.ID, report.Seed)
	require.NotNil(t, report.DefenderVillageID)
	assert.Equal(t, w.DefenderVillage.ID, *report.DefenderVillageID)

	var battle combat.BattleResult
	require.NoError(t, report.DecodeResult(&battle))
	assert.Less(t, battle.Morale, 1.0, "a larger attacker is penalised")
	assert.Less(t, h.garrison(w.DefenderVillage.ID)["spearman"], 100)

	ret := h.child(m.ID)
	require.NotNil(t, ret)
	assert.Equal(t, string(movement.KindReturn), ret.Kind)
	assert.Equal(t, string(movement.StatusReturning), ret.Status)
	assert.Equal(t, []int{m.ToX, m.ToY, m.FromX, m.FromY}, []int{ret.FromX, ret.FromY, ret.ToX, ret.ToY})
	assert.True(t, ret.DepartAt.Equal(m.ArriveAt))
	survivors, err := ret.UnitCounts()
	require.NoError(t, err)
	assert.Equal(t, battle.AttackerSurvivors, survivors)

	h.advanceTo(ret.ArriveAt)
	assert.Equal(t, string(movement.StatusDone), h.movement(ret.ID).Status)
	assert.Equal(t, 1000+survivors["axeman"], h.garrison(w.AttackerVillage.ID)["axeman"])

	assert.Equal(t, []events.Type{
		events.TypeCreated, events.TypeResolved, events.TypeCreated, events.TypeReturned,
	}, h.pub.types())
}

func TestSendMission_Idempotency(t *testing.T) {
	h := newHarness(t)
	w := h.world
	req := SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindRaid,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"light_cavalry": 100},
		IdempotencyKey:  "raid-1",
	}

	first, err := h.svc.SendMission(h.ctx, req)
	require.NoError(t, err)
	second, err := h.svc.SendMission(h.ctx, req)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Movement.ID, second.Movement.ID)
	assert.True(t, first.Movement.ArriveAt.Equal(second.Movement.ArriveAt))
	assert.Equal(t, first.Warnings, second.Warnings)
	assert.Equal(t, 200, h.garrison(w.AttackerVillage.ID)["light_cavalry"], "units are reserved once")

	var count int64
	require.NoError(t, h.db.Model(&models.Movement{}).Where("idempotency_key = ?", "raid-1").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	req.Units = units.Counts{"light_cavalry": 101}
	_, err = h.svc.SendMission(h.ctx, req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeIdempotencyConflict))
}

func TestSendMission_Rejections(t *testing.T) {
	h := newHarness(t)
	w := h.world
	empty := units.Counts{}

	base := func() SendMissionRequest {
		return SendMissionRequest{
			SourceVillageID: w.AttackerVillage.ID,
			AccountID:       w.Attacker.ID,
			Mission:         movement.KindAttack,
			Target:          villageTarget(w.DefenderVillage),
			Units:           units.Counts{"axeman": 10},
			IdempotencyKey:  "k",
		}
	}

	tests := []struct {
		name   string
		mutate func(r *SendMissionRequest)
		code   string
	}{
		{"missing key", func(r *SendMissionRequest) { r.IdempotencyKey = "" }, errors.ErrCodeValidation},
		{"no units", func(r *SendMissionRequest) { r.Units = empty }, errors.ErrCodeValidation},
		{"unknown unit", func(r *SendMissionRequest) { r.Units = units.Counts{"dragon": 1} }, errors.ErrCodeValidation},
		{"negative units", func(r *SendMissionRequest) { r.Units = units.Counts{"axeman": -1} }, errors.ErrCodeValidation},
		{"scout with infantry", func(r *SendMissionRequest) { r.Mission = movement.KindScout }, errors.ErrCodeValidation},
		{"unknown mission", func(r *SendMissionRequest) { r.Mission = "pillage" }, errors.ErrCodeValidation},
		{"catapult targets without catapults", func(r *SendMissionRequest) { r.CatapultTargets = []string{"palace"} }, errors.ErrCodeValidation},
		{"no target", func(r *SendMissionRequest) { r.Target = nil }, errors.ErrCodeValidation},
		{"both times", func(r *SendMissionRequest) { r.ArriveAt, r.DepartAt = timePtr(epoch.Add(5*time.Hour)), timePtr(epoch) }, errors.ErrCodeValidation},
		{"self target", func(r *SendMissionRequest) { r.Target = villageTarget(w.AttackerVillage) }, errors.ErrCodeValidation},
		{"foreign source", func(r *SendMissionRequest) { r.SourceVillageID = w.DefenderVillage.ID }, errors.ErrCodeForbidden},
		{"missing target village", func(r *SendMissionRequest) { r.Target = movement.VillageTarget{VillageID: 9999} }, errors.ErrCodeNotFound},
		{"coords with wrong village", func(r *SendMissionRequest) {
			id := w.AttackerOutpost.ID
			r.Target = movement.CoordsTarget{X: 6, Y: 8, VillageID: &id}
		}, errors.ErrCodeValidation},
		{"reinforce empty tile", func(r *SendMissionRequest) {
			r.Mission = movement.KindReinforce
			r.Target = movement.CoordsTarget{X: 40, Y: 40}
		}, errors.ErrCodeValidation},
		{"insufficient units", func(r *SendMissionRequest) { r.Units = units.Counts{"axeman": 2001} }, errors.ErrCodeInsufficientUnits},
		{"unreachable arrival", func(r *SendMissionRequest) { r.ArriveAt = timePtr(epoch.Add(time.Minute)) }, errors.ErrCodeUnreachableArrival},
		{"departure in the past", func(r *SendMissionRequest) { r.DepartAt = timePtr(epoch.Add(-time.Minute)) }, errors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			_, err := h.svc.SendMission(h.ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err), err.Error())
		})
	}

	var count int64
	require.NoError(t, h.db.Model(&models.Movement{}).Count(&count).Error)
	assert.Zero(t, count)
	var queued int64
	require.NoError(t, h.db.Model(&models.EventQueueItem{}).Count(&queued).Error)
	assert.Zero(t, queued)
	assert.Equal(t, 2000, h.garrison(w.AttackerVillage.ID)["axeman"])
}

func TestSendMission_ArriveAtBackComputesDeparture(t *testing.T) {
	h := newHarness(t)
	w := h.world
	sent := units.Counts{"scout": 10}
	arrive := epoch.Add(4 * time.Hour)

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindScout,
		Target:          movement.CoordsTarget{X: 6, Y: 8},
		Units:           sent,
		ArriveAt:        &arrive,
		IdempotencyKey:  "scout-1",
	})
	require.NoError(t, err)
	m := res.Movement

	assert.Equal(t, string(movement.StatusScheduled), m.Status)
	assert.Equal(t, movement.TargetTypeCoords, m.TargetType)
	require.NotNil(t, m.TargetVillageID, "coordinates holding a village resolve to it")
	assert.Equal(t, w.DefenderVillage.ID, *m.TargetVillageID)
	assert.True(t, m.ArriveAt.Equal(arrive))
	assert.True(t, m.DepartAt.Equal(arrive.Add(-h.travel(w.AttackerVillage, w.DefenderVillage, sent))))

	h.advanceTo(m.DepartAt)
	assert.Equal(t, string(movement.StatusEnRoute), h.movement(m.ID).Status)

	h.advanceTo(m.ArriveAt)
	resolved := h.movement(m.ID)
	assert.Equal(t, string(movement.StatusResolved), resolved.Status)
	require.NotNil(t, resolved.ReportID)
	report, err := h.svc.GetReport(h.ctx, *resolved.ReportID, w.Attacker.ID)
	require.NoError(t, err)
	assert.True(t, report.AttackerWon, "ten scouts beat five")
	require.NotNil(t, h.child(m.ID))
	assert.Equal(t, 100, h.garrison(w.DefenderVillage.ID)["spearman"], "scouting never touches other units")
}

func TestCancelMovement(t *testing.T) {
	h := newHarness(t)
	w := h.world
	depart := epoch.Add(time.Hour)

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindAttack,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"axeman": 300},
		DepartAt:        &depart,
		IdempotencyKey:  "later",
	})
	require.NoError(t, err)
	m := res.Movement
	require.Equal(t, string(movement.StatusScheduled), m.Status)
	assert.Equal(t, 1700, h.garrison(w.AttackerVillage.ID)["axeman"])

	_, err = h.svc.CancelMovement(h.ctx, m.ID, w.Defender.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	cancelled, err := h.svc.CancelMovement(h.ctx, m.ID, w.Attacker.ID)
	require.NoError(t, err)
	assert.Equal(t, string(movement.StatusCancelled), cancelled.Status)
	assert.Equal(t, 2000, h.garrison(w.AttackerVillage.ID)["axeman"])

	_, err = h.svc.CancelMovement(h.ctx, m.ID, w.Attacker.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))

	// The queued departure fires and does nothing.
	h.advanceTo(m.ArriveAt.Add(time.Hour))
	assert.Equal(t, string(movement.StatusCancelled), h.movement(m.ID).Status)
	assert.Equal(t, 100, h.garrison(w.DefenderVillage.ID)["spearman"])
}

func TestCancelMovement_EnRouteIsRejected(t *testing.T) {
	h := newHarness(t)
	w := h.world

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindAttack,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"axeman": 10},
		IdempotencyKey:  "now",
	})
	require.NoError(t, err)

	_, err = h.svc.CancelMovement(h.ctx, res.Movement.ID, w.Attacker.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
}

func TestReinforce_MergesIntoStationedStack(t *testing.T) {
	h := newHarness(t)
	w := h.world
	sent := units.Counts{"spearman": 100}

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindReinforce,
		Target:          villageTarget(w.AttackerOutpost),
		Units:           sent,
		IdempotencyKey:  "support",
	})
	require.NoError(t, err)

	h.advanceTo(res.Movement.ArriveAt)
	m := h.movement(res.Movement.ID)
	assert.Equal(t, string(movement.StatusResolved), m.Status)
	assert.Nil(t, m.ReportID, "reinforcements do not fight")
	assert.Nil(t, h.child(m.ID))

	stationed, err := h.villages.StationedAt(w.AttackerVillage.ID, w.AttackerOutpost.ID)
	require.NoError(t, err)
	assert.Equal(t, sent, stationed)
	assert.Equal(t, 400, h.garrison(w.AttackerVillage.ID)["spearman"])
}

func TestReinforce_ToDeletedVillageReturnsWithWarning(t *testing.T) {
	h := newHarness(t)
	w := h.world

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindReinforce,
		Target:          villageTarget(w.AttackerOutpost),
		Units:           units.Counts{"spearman": 100},
		IdempotencyKey:  "doomed-support",
	})
	require.NoError(t, err)

	require.NoError(t, h.villages.DeleteVillage(w.AttackerOutpost.ID))
	h.advanceTo(res.Movement.ArriveAt)

	m := h.movement(res.Movement.ID)
	assert.Equal(t, string(movement.StatusResolved), m.Status)
	assert.Contains(t, m.WarningList(), errors.WarningTargetVanished)

	ret := h.child(m.ID)
	require.NotNil(t, ret)
	assert.Contains(t, ret.WarningList(), errors.WarningTargetVanished)
	assert.True(t, ret.DepartAt.Equal(m.ArriveAt))

	h.advanceTo(ret.ArriveAt)
	assert.Equal(t, string(movement.StatusDone), h.movement(ret.ID).Status)
	assert.Equal(t, 500, h.garrison(w.AttackerVillage.ID)["spearman"])
}

func TestAttack_ToDeletedVillageIsAnEmptyTile(t *testing.T) {
	h := newHarness(t)
	w := h.world

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindRaid,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"light_cavalry": 50},
		IdempotencyKey:  "late-raid",
	})
	require.NoError(t, err)

	require.NoError(t, h.villages.DeleteVillage(w.DefenderVillage.ID))
	h.advanceTo(res.Movement.ArriveAt)

	m := h.movement(res.Movement.ID)
	assert.Equal(t, string(movement.StatusResolved), m.Status)
	assert.Contains(t, m.WarningList(), errors.WarningTargetVanished)
	require.NotNil(t, m.ReportID)

	report, err := h.svc.GetReport(h.ctx, *m.ReportID, w.Attacker.ID)
	require.NoError(t, err)
	var battle combat.BattleResult
	require.NoError(t, report.DecodeResult(&battle))
	assert.Equal(t, 1.0, battle.Morale)
	assert.True(t, battle.AttackerWon)
	assert.Empty(t, battle.AttackerLosses)

	ret := h.child(m.ID)
	require.NotNil(t, ret)
	h.advanceTo(ret.ArriveAt)
	assert.Equal(t, 300, h.garrison(w.AttackerVillage.ID)["light_cavalry"])
}

func TestSiege_DamagesWallAndBuildings(t *testing.T) {
	h := newHarness(t)
	w := h.world

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindSiege,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"axeman": 1500, "ram": 150, "catapult": 50},
		CatapultTargets: []string{"palace", "warehouse"},
		IdempotencyKey:  "siege-1",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "rally point 20 allows two targets")

	h.advanceTo(res.Movement.ArriveAt)
	m := h.movement(res.Movement.ID)
	require.NotNil(t, m.ReportID)

	report, err := h.svc.GetReport(h.ctx, *m.ReportID, w.Attacker.ID)
	require.NoError(t, err)
	var battle combat.BattleResult
	require.NoError(t, report.DecodeResult(&battle))
	require.True(t, battle.AttackerWon)
	require.NotNil(t, battle.Catapult)
	assert.Equal(t, combat.ModeTwo, battle.Catapult.Mode)

	village, err := h.villages.GetVillageByID(w.DefenderVillage.ID)
	require.NoError(t, err)
	assert.Equal(t, battle.WallAfter, village.WallLevel)
	assert.Less(t, village.WallLevel, 10)

	snap, err := h.villages.Snapshot(village)
	require.NoError(t, err)
	for _, d := range battle.Catapult.Targets {
		if d.TargetKind == combat.TargetBuilding {
			assert.Equal(t, d.AfterLevel, snap.BuildingLevel(d.TargetType), d.TargetID)
		}
	}
}

func TestSendMission_CatapultTargetsIgnoredWithoutRallyPoint(t *testing.T) {
	h := newHarness(t)
	w := h.world
	require.NoError(t, h.db.Model(&models.Village{}).Where("id = ?", w.AttackerVillage.ID).Update("rally_point_level", 3).Error)

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindAttack,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"axeman": 100, "catapult": 5},
		CatapultTargets: []string{"palace"},
		IdempotencyKey:  "blind",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{WarningCatapultTargetsIgnored}, res.Warnings)
}

func TestListMovementsAndVisibility(t *testing.T) {
	h := newHarness(t)
	w := h.world

	attack, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindAttack,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"axeman": 10},
		IdempotencyKey:  "a",
	})
	require.NoError(t, err)
	scout, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindScout,
		Target:          villageTarget(w.DefenderVillage),
		Units:           units.Counts{"scout": 1},
		IdempotencyKey:  "s",
	})
	require.NoError(t, err)

	incoming, err := h.svc.ListMovements(h.ctx, MovementQuery{
		AccountID: w.Defender.ID, VillageID: w.DefenderVillage.ID, Direction: models.DirectionIncoming,
	})
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, scout.Movement.ID, incoming[0].ID, "scouts arrive first")
	assert.Equal(t, attack.Movement.ID, incoming[1].ID)

	scouts, err := h.svc.ListMovements(h.ctx, MovementQuery{
		AccountID: w.Attacker.ID, VillageID: w.AttackerVillage.ID, Direction: models.DirectionOutgoing, Mission: "scout",
	})
	require.NoError(t, err)
	require.Len(t, scouts, 1)

	_, err = h.svc.ListMovements(h.ctx, MovementQuery{AccountID: w.Attacker.ID, VillageID: w.DefenderVillage.ID})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	_, err = h.svc.ListMovements(h.ctx, MovementQuery{AccountID: w.Attacker.ID, VillageID: w.AttackerVillage.ID, Direction: "sideways"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	_, err = h.svc.GetMovement(h.ctx, attack.Movement.ID, w.Defender.ID)
	assert.NoError(t, err, "the target's owner sees incoming movements")

	var stranger models.Account
	stranger.Name = "stranger"
	require.NoError(t, h.db.Create(&stranger).Error)
	_, err = h.svc.GetMovement(h.ctx, attack.Movement.ID, stranger.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestRecallReinforcements(t *testing.T) {
	h := newHarness(t)
	w := h.world
	sent := units.Counts{"spearman": 100}

	res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
		SourceVillageID: w.AttackerVillage.ID,
		AccountID:       w.Attacker.ID,
		Mission:         movement.KindReinforce,
		Target:          villageTarget(w.AttackerOutpost),
		Units:           sent,
		IdempotencyKey:  "support",
	})
	require.NoError(t, err)
	m := res.Movement

	h.advanceTo(epoch.Add(2 * time.Minute))
	req := RecallRequest{
		FromVillageID:  w.AttackerVillage.ID,
		ToVillageID:    w.AttackerOutpost.ID,
		AccountID:      w.Attacker.ID,
		Units:          sent,
		IdempotencyKey: "recall-1",
	}
	ret, err := h.svc.RecallReinforcements(h.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, string(movement.StatusCancelled), h.movement(m.ID).Status)
	assert.Equal(t, string(movement.KindReturn), ret.Kind)
	require.NotNil(t, ret.ParentID)
	assert.Equal(t, m.ID, *ret.ParentID)
	assert.True(t, ret.DepartAt.Equal(epoch.Add(2*time.Minute)))
	assert.True(t, ret.ArriveAt.Equal(epoch.Add(4*time.Minute)), "the way back takes as long as the way out so far")
	assert.Equal(t, w.AttackerVillage.X, ret.ToX)
	assert.Equal(t, w.AttackerVillage.Y, ret.ToY)

	again, err := h.svc.RecallReinforcements(h.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ret.ID, again.ID)

	req.Units = units.Counts{"spearman": 99}
	_, err = h.svc.RecallReinforcements(h.ctx, req)
	assert.True(t, errors.HasCode(err, errors.ErrCodeIdempotencyConflict))

	// The original arrival fires but the movement is already cancelled.
	h.advanceTo(m.ArriveAt)
	stationed, err := h.villages.StationedAt(w.AttackerVillage.ID, w.AttackerOutpost.ID)
	require.NoError(t, err)
	assert.Empty(t, stationed)
	assert.Equal(t, 500, h.garrison(w.AttackerVillage.ID)["spearman"])
	assert.Contains(t, h.pub.types(), events.TypeRecalled)
}

func TestRecallReinforcements_Rejections(t *testing.T) {
	h := newHarness(t)
	w := h.world

	send := func(key string, depart *time.Time, spears int) *models.Movement {
		res, err := h.svc.SendMission(h.ctx, SendMissionRequest{
			SourceVillageID: w.AttackerVillage.ID,
			AccountID:       w.Attacker.ID,
			Mission:         movement.KindReinforce,
			Target:          villageTarget(w.AttackerOutpost),
			Units:           units.Counts{"spearman": spears},
			DepartAt:        depart,
			IdempotencyKey:  key,
		})
		require.NoError(t, err)
		return res.Movement
	}
	recall := func(u units.Counts) error {
		_, err := h.svc.RecallReinforcements(h.ctx, RecallRequest{
			FromVillageID: w.AttackerVillage.ID,
			ToVillageID:   w.AttackerOutpost.ID,
			AccountID:     w.Attacker.ID,
			Units:         u,
		})
		return err
	}

	assert.True(t, errors.HasCode(recall(nil), errors.ErrCodeNotFound), "nothing to recall yet")

	send("later", timePtr(epoch.Add(time.Hour)), 20)
	assert.True(t, errors.HasCode(recall(nil), errors.ErrCodeInvalidTransition), "scheduled movements are cancelled, not recalled")

	send("now", nil, 10)
	assert.True(t, errors.HasCode(recall(units.Counts{"spearman": 11}), errors.ErrCodeNotFound))

	h.advanceTo(epoch.Add(5 * time.Minute))
	err := recall(units.Counts{"spearman": 10})
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.ErrCodeRecallWindowExpired))
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "deadline")

	_, err = h.svc.RecallReinforcements(h.ctx, RecallRequest{
		FromVillageID: w.DefenderVillage.ID,
		ToVillageID:   w.AttackerOutpost.ID,
		AccountID:     w.Attacker.ID,
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
}
