package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/mroshb/rallypoint/pkg/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Item is a request to schedule an event.
type Item struct {
	Type        string
	ScheduledAt time.Time
	Payload     interface{}
	Priority    int
	DedupeKey   string
	MaxAttempts int
}

// envelope keeps every stored payload a JSON object whatever the caller passes.
type envelope struct {
	Data interface{} `json:"data"`
}

// Store is the persistent event queue. Claims are safe across processes: an item
// moves PENDING -> PROCESSING only through a conditional update.
type Store struct {
	db    *gorm.DB
	clock utils.Clock
	opts  Options
}

func NewStore(db *gorm.DB, clock utils.Clock, opts Options) *Store {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 10 * time.Second
	}
	return &Store{db: db, clock: clock, opts: opts}
}

// Enqueue inserts item using tx when given so the wake-up commits with the caller's
// write. An item with an existing dedupe key is not inserted again; the stored one
// is returned instead.
func (s *Store) Enqueue(ctx context.Context, tx *gorm.DB, item Item) (*models.EventQueueItem, error) {
	db := s.db
	if tx != nil {
		db = tx
	}
	db = db.WithContext(ctx)

	if item.Type == "" {
		return nil, errors.New(errors.ErrCodeValidation, "event type is required")
	}
	payload, err := json.Marshal(envelope{Data: item.Payload})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "event payload is not serialisable")
	}

	row := &models.EventQueueItem{
		Type:        item.Type,
		ScheduledAt: item.ScheduledAt.UTC(),
		Payload:     datatypes.JSON(payload),
		Status:      models.QueueStatusPending,
		Priority:    item.Priority,
		MaxAttempts: item.MaxAttempts,
	}
	if row.MaxAttempts < 1 {
		row.MaxAttempts = s.opts.MaxAttempts
	}
	if item.DedupeKey == "" {
		if err := db.Create(row).Error; err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to enqueue event")
		}
		return row, nil
	}

	key := item.DedupeKey
	row.DedupeKey = &key
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to enqueue event")
	}
	if result.RowsAffected == 1 {
		return row, nil
	}

	var existing models.EventQueueItem
	if err := db.Where("dedupe_key = ?", key).First(&existing).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load deduplicated event")
	}
	logger.Debug("Event already queued", "dedupe_key", key, "event_id", existing.ID)
	return &existing, nil
}

// ClaimDue locks up to limit due items for workerID, highest priority and oldest first.
func (s *Store) ClaimDue(ctx context.Context, workerID string, limit int) ([]models.EventQueueItem, error) {
	if limit < 1 {
		limit = 1
	}
	now := s.clock.Now().UTC()
	db := s.db.WithContext(ctx)

	var candidates []uint
	if err := db.Model(&models.EventQueueItem{}).
		Where("status = ? AND scheduled_at <= ?", models.QueueStatusPending, now).
		Order("priority DESC, scheduled_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &candidates).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load due events")
	}

	claimed := make([]models.EventQueueItem, 0, len(candidates))
	for _, id := range candidates {
		result := db.Model(&models.EventQueueItem{}).
			Where("id = ? AND status = ?", id, models.QueueStatusPending).
			Updates(map[string]interface{}{
				"status":    models.QueueStatusProcessing,
				"locked_by": workerID,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return claimed, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to claim event")
		}
		if result.RowsAffected == 0 {
			logger.Debug("Lost claim race", "event_id", id, "worker_id", workerID)
			continue
		}

		var item models.EventQueueItem
		if err := db.First(&item, id).Error; err != nil {
			logger.Error("Claimed event is unreadable", "event_id", id, "worker_id", workerID, "error", err)
			s.bury(ctx, id, err)
			continue
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

// bury marks an item FAILED without loading it.
func (s *Store) bury(ctx context.Context, id uint, cause error) {
	err := s.db.WithContext(ctx).Model(&models.EventQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusFailed,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": cause.Error(),
		}).Error
	if err != nil {
		logger.Error("Failed to mark unreadable event", "event_id", id, "error", err)
	}
}

// Complete marks a claimed item done. It fails with LOCK_LOST if workerID no longer owns it.
func (s *Store) Complete(ctx context.Context, id uint, workerID string) error {
	now := s.clock.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.EventQueueItem{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, models.QueueStatusProcessing, workerID).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusCompleted,
			"completed_at": now,
			"locked_by":    nil,
			"locked_at":    nil,
			"last_error":   "",
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to complete event")
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrCodeLockLost, "event %d is no longer held by %s", id, workerID)
	}
	return nil
}

// Fail records cause and either reschedules the item with linear backoff or,
// once attempts are exhausted, marks it FAILED.
func (s *Store) Fail(ctx context.Context, id uint, workerID string, cause error) error {
	db := s.db.WithContext(ctx)

	var item models.EventQueueItem
	if err := db.First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.Newf(errors.ErrCodeNotFound, "event %d not found", id)
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load event")
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	updates := map[string]interface{}{
		"locked_by":  nil,
		"locked_at":  nil,
		"last_error": msg,
	}
	if item.Attempts >= item.MaxAttempts {
		updates["status"] = models.QueueStatusFailed
	} else {
		updates["status"] = models.QueueStatusPending
		updates["scheduled_at"] = s.clock.Now().UTC().Add(time.Duration(item.Attempts) * s.opts.RetryBackoff)
	}

	result := db.Model(&models.EventQueueItem{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, models.QueueStatusProcessing, workerID).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to record event failure")
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrCodeLockLost, "event %d is no longer held by %s", id, workerID)
	}
	if updates["status"] == models.QueueStatusFailed {
		logger.Error("Event failed permanently", "event_id", id, "type", item.Type, "attempts", item.Attempts, "error", msg)
	}
	return nil
}

// ReclaimStale releases PROCESSING items locked longer than maxAge. The expired claim
// counts as an attempt, so items that are out of attempts become FAILED instead of
// PENDING. It returns how many items were released either way.
func (s *Store) ReclaimStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.clock.Now().UTC().Add(-maxAge)
	db := s.db.WithContext(ctx)

	exhausted := db.Model(&models.EventQueueItem{}).
		Where("status = ? AND locked_at < ? AND attempts >= max_attempts", models.QueueStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusFailed,
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": "lock expired on final attempt",
		})
	if exhausted.Error != nil {
		return 0, errors.Wrap(exhausted.Error, errors.ErrCodeInternalError, "failed to reclaim stale events")
	}
	if exhausted.RowsAffected > 0 {
		logger.Error("Stale events out of attempts", "count", exhausted.RowsAffected)
	}

	result := db.Model(&models.EventQueueItem{}).
		Where("status = ? AND locked_at < ?", models.QueueStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":    models.QueueStatusPending,
			"locked_by": nil,
			"locked_at": nil,
		})
	if result.Error != nil {
		return exhausted.RowsAffected, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to reclaim stale events")
	}
	if result.RowsAffected > 0 {
		logger.Warn("Reclaimed stale event locks", "count", result.RowsAffected, "max_age", maxAge.String())
	}
	return exhausted.RowsAffected + result.RowsAffected, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.EventQueueItem, error) {
	var item models.EventQueueItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "event %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get event")
	}
	return &item, nil
}

// GetByDedupeKey returns the item scheduled under key.
func (s *Store) GetByDedupeKey(ctx context.Context, key string) (*models.EventQueueItem, error) {
	var item models.EventQueueItem
	if err := s.db.WithContext(ctx).Where("dedupe_key = ?", key).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "no event with dedupe key %q", key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get event")
	}
	return &item, nil
}

// Stats counts items per status.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.EventQueueItem{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count events")
	}

	stats := map[string]int64{
		models.QueueStatusPending:    0,
		models.QueueStatusProcessing: 0,
		models.QueueStatusCompleted:  0,
		models.QueueStatusFailed:     0,
	}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

// DecodePayload unmarshals an item's payload into v.
func DecodePayload(item *models.EventQueueItem, v interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(item.Payload, &env); err != nil {
		return fmt.Errorf("decode payload of event %d: %w", item.ID, err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("decode payload of event %d: missing data", item.ID)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode payload of event %d: %w", item.ID, err)
	}
	return nil
}
