package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/testutils"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type movementPayload struct {
	MovementID string `json:"movementId"`
}

func newTestStore(t *testing.T) (*Store, *utils.FakeClock) {
	t.Helper()
	clock := utils.NewFakeClock(epoch)
	store := NewStore(testutils.NewTestDB(t), clock, Options{MaxAttempts: 3, RetryBackoff: 30 * time.Second})
	return store, clock
}

func TestStore_EnqueueDedupe(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, nil, Item{
		Type:        "movement.arrive",
		ScheduledAt: epoch.Add(time.Minute),
		Payload:     movementPayload{MovementID: "m-1"},
		DedupeKey:   "movement.arrive:m-1",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	again, err := store.Enqueue(ctx, nil, Item{
		Type:        "movement.arrive",
		ScheduledAt: epoch.Add(time.Hour),
		Payload:     movementPayload{MovementID: "m-1"},
		DedupeKey:   "movement.arrive:m-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.ScheduledAt.Equal(epoch.Add(time.Minute)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[models.QueueStatusPending])

	var p movementPayload
	require.NoError(t, DecodePayload(again, &p))
	assert.Equal(t, "m-1", p.MovementID)
}

func TestStore_EnqueueRejectsMissingType(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Enqueue(context.Background(), nil, Item{ScheduledAt: epoch})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestStore_ClaimDueOrdering(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	enqueue := func(name string, at time.Time, priority int) uint {
		item, err := store.Enqueue(ctx, nil, Item{Type: name, ScheduledAt: at, Payload: name, Priority: priority})
		require.NoError(t, err)
		return item.ID
	}
	late := enqueue("late", epoch.Add(-time.Minute), 0)
	early := enqueue("early", epoch.Add(-time.Hour), 0)
	urgent := enqueue("urgent", epoch, 10)
	enqueue("future", epoch.Add(time.Hour), 100)

	claimed, err := store.ClaimDue(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, []uint{urgent, early, late}, []uint{claimed[0].ID, claimed[1].ID, claimed[2].ID})

	for _, item := range claimed {
		assert.Equal(t, models.QueueStatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
		require.NotNil(t, item.LockedBy)
		assert.Equal(t, "w1", *item.LockedBy)
	}

	again, err := store.ClaimDue(ctx, "w2", 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStore_ConcurrentClaimsAreExclusive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: i})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[uint]string{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		worker := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				items, err := store.ClaimDue(ctx, worker, 3)
				if err != nil || len(items) == 0 {
					return
				}
				mu.Lock()
				for _, it := range items {
					if prev, dup := seen[it.ID]; dup {
						t.Errorf("event %d claimed by %s and %s", it.ID, prev, worker)
					}
					seen[it.ID] = worker
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestStore_CompleteRequiresOwnership(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: 1})
	require.NoError(t, err)
	claimed, err := store.ClaimDue(ctx, "w1", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	err = store.Complete(ctx, claimed[0].ID, "w2")
	assert.True(t, errors.HasCode(err, errors.ErrCodeLockLost))

	require.NoError(t, store.Complete(ctx, claimed[0].ID, "w1"))
	item, err := store.Get(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, item.Status)
	assert.Nil(t, item.LockedBy)
	assert.NotNil(t, item.CompletedAt)
}

func TestStore_FailRetriesThenGivesUp(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	queued, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: 1})
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.ClaimDue(ctx, "w1", 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1, "attempt %d", attempt)
		require.NoError(t, store.Fail(ctx, queued.ID, "w1", fmt.Errorf("boom %d", attempt)))

		item, err := store.Get(ctx, queued.ID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("boom %d", attempt), item.LastError)
		if attempt < 3 {
			assert.Equal(t, models.QueueStatusPending, item.Status)
			assert.True(t, item.ScheduledAt.Equal(clock.Now().Add(time.Duration(attempt)*30*time.Second)))

			none, err := store.ClaimDue(ctx, "w1", 1)
			require.NoError(t, err)
			assert.Empty(t, none, "backoff must delay the retry")
			clock.Advance(time.Duration(attempt) * 30 * time.Second)
		} else {
			assert.Equal(t, models.QueueStatusFailed, item.Status)
		}
	}
}

func TestStore_ReclaimStale(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: 1})
	require.NoError(t, err)
	claimed, err := store.ClaimDue(ctx, "crashed", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := store.ReclaimStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh locks are not stale")

	clock.Advance(6 * time.Minute)
	n, err = store.ReclaimStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reclaimed, err := store.ClaimDue(ctx, "healthy", 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, 2, reclaimed[0].Attempts)

	err = store.Complete(ctx, claimed[0].ID, "crashed")
	assert.True(t, errors.HasCode(err, errors.ErrCodeLockLost))
	require.NoError(t, store.Complete(ctx, reclaimed[0].ID, "healthy"))
}

func TestStore_ScalarPayloadsDoNotStallClaims(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	obj, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: movementPayload{MovementID: "m-1"}})
	require.NoError(t, err)
	scalar, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: 7})
	require.NoError(t, err)

	// A row written without the payload envelope, as an older build would have.
	require.NoError(t, store.db.Exec(
		"INSERT INTO event_queue (type, scheduled_at, payload, status, priority, attempts, max_attempts, created_at, updated_at) VALUES (?, ?, ?, ?, 0, 0, 3, ?, ?)",
		"tick", epoch, 7, models.QueueStatusPending, epoch, epoch,
	).Error)

	claimed, err := store.ClaimDue(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, []uint{obj.ID, scalar.ID}, []uint{claimed[0].ID, claimed[1].ID})

	var p movementPayload
	require.NoError(t, DecodePayload(&claimed[0], &p))
	assert.Equal(t, "m-1", p.MovementID)
	var n int
	require.NoError(t, DecodePayload(&claimed[1], &n))
	assert.Equal(t, 7, n)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[models.QueueStatusFailed], "the unreadable row is set aside")
	assert.Equal(t, int64(2), stats[models.QueueStatusProcessing])

	again, err := store.ClaimDue(ctx, "w1", 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStore_ReclaimStaleOutOfAttempts(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	queued, err := store.Enqueue(ctx, nil, Item{Type: "tick", ScheduledAt: epoch, Payload: 1, MaxAttempts: 1})
	require.NoError(t, err)
	claimed, err := store.ClaimDue(ctx, "crashed", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	clock.Advance(6 * time.Minute)
	n, err := store.ReclaimStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	item, err := store.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Nil(t, item.LockedBy)
	assert.NotEmpty(t, item.LastError)

	none, err := store.ClaimDue(ctx, "healthy", 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}
