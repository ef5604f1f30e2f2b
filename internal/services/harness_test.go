package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mroshb/rallypoint/internal/config"
	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/queue"
	"github.com/mroshb/rallypoint/internal/repositories"
	"github.com/mroshb/rallypoint/internal/testutils"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.MovementEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.MovementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	world    *testutils.World
	clock    *utils.FakeClock
	svc      *MovementService
	waves    *WaveService
	worker   *queue.Worker
	pub      *recordingPublisher
	villages *repositories.VillageRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutils.NewTestDB(t)
	world := testutils.NewWorld(t, db)
	clock := utils.NewFakeClock(epoch)
	store := queue.NewStore(db, clock, queue.Options{MaxAttempts: 3, RetryBackoff: time.Minute})
	pub := &recordingPublisher{}

	svc := NewMovementService(
		NewDeps(db, store, config.StaticRules(config.DefaultGameRules()), clock, pub),
		Options{ServerSpeed: 1, RecallGrace: 5 * time.Minute, WaveDefaultJitter: time.Second, WaveMaxMembers: 5},
	)
	worker := queue.NewWorker(store, queue.WorkerConfig{ID: "test-worker", BatchSize: 20, Concurrency: 1})
	svc.RegisterHandlers(worker)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		world:    world,
		clock:    clock,
		svc:      svc,
		waves:    NewWaveService(svc),
		worker:   worker,
		pub:      pub,
		villages: repositories.NewVillageRepository(db),
	}
}

// advanceTo moves the clock and processes everything that became due.
func (h *harness) advanceTo(at time.Time) {
	h.t.Helper()
	h.clock.Set(at)
	for i := 0; i < 10; i++ {
		n, err := h.worker.RunOnce(h.ctx)
		require.NoError(h.t, err)
		if n == 0 {
			break
		}
	}

	var failed []models.EventQueueItem
	require.NoError(h.t, h.db.Where("last_error <> ''").Find(&failed).Error)
	for _, item := range failed {
		h.t.Errorf("event %d (%s) failed: %s", item.ID, item.Type, item.LastError)
	}
}

func (h *harness) garrison(villageID uint) units.Counts {
	h.t.Helper()
	c, err := h.villages.Garrison(villageID)
	require.NoError(h.t, err)
	return c
}

func (h *harness) movement(id string) *models.Movement {
	h.t.Helper()
	m, err := h.svc.Movements.GetByID(id)
	require.NoError(h.t, err)
	return m
}

// child returns the movement spawned by parent, if any.
func (h *harness) child(parentID string) *models.Movement {
	h.t.Helper()
	var out []models.Movement
	require.NoError(h.t, h.db.Where("parent_id = ?", parentID).Find(&out).Error)
	if len(out) == 0 {
		return nil
	}
	require.Len(h.t, out, 1)
	return &out[0]
}

func (h *harness) travel(from, to *models.Village, counts units.Counts) time.Duration {
	catalog := units.DefaultCatalog()
	return movement.TravelDuration(
		movement.Distance(movement.Point{X: from.X, Y: from.Y}, movement.Point{X: to.X, Y: to.Y}, 0),
		counts.SlowestSpeed(catalog),
		1,
	)
}

func villageTarget(v *models.Village) movement.Target {
	return movement.VillageTarget{VillageID: v.ID}
}

func timePtr(t time.Time) *time.Time { return &t }
