package repositories

import (
	"time"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/pkg/errors"
	"gorm.io/gorm"
)

type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

func (r *MovementRepository) WithTx(tx *gorm.DB) *MovementRepository {
	return &MovementRepository{db: tx}
}

// MovementFilter narrows ListMovements. Zero values match everything.
type MovementFilter struct {
	VillageID uint
	Direction string
	Status    string
	Mission   string
	Limit     int
}

func (r *MovementRepository) Create(m *models.Movement) error {
	if err := r.db.Create(m).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return errors.Wrap(err, errors.ErrCodeAlreadyExists, "movement idempotency key already used")
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create movement")
	}
	return nil
}

func (r *MovementRepository) GetByID(id string) (*models.Movement, error) {
	var m models.Movement
	if err := r.db.Where("id = ?", id).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "movement %s not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get movement")
	}
	return &m, nil
}

// GetByIDForUpdate locks the movement row until the surrounding transaction ends.
func (r *MovementRepository) GetByIDForUpdate(id string) (*models.Movement, error) {
	var m models.Movement
	if err := forUpdate(r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "movement %s not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to lock movement")
	}
	return &m, nil
}

// GetByIdempotencyKey returns nil when the key has not been used yet.
func (r *MovementRepository) GetByIdempotencyKey(key string) (*models.Movement, error) {
	var m models.Movement
	if err := r.db.Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to look up idempotency key")
	}
	return &m, nil
}

// UpdateStatus moves a movement from one status to another, failing with
// INVALID_TRANSITION when the row is no longer in the expected state.
func (r *MovementRepository) UpdateStatus(m *models.Movement, to movement.Status, extra map[string]interface{}) error {
	from := movement.Status(m.Status)
	if _, err := movement.Transition(from, to); err != nil {
		return err
	}
	updates := map[string]interface{}{"status": string(to)}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.Model(&models.Movement{}).
		Where("id = ? AND status = ?", m.ID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update movement status")
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrCodeInvalidTransition, "movement %s is no longer %s", m.ID, from)
	}
	m.Status = string(to)
	return nil
}

// List returns movements ordered by arrival time ascending.
func (r *MovementRepository) List(filter MovementFilter) ([]models.Movement, error) {
	query := r.db.Model(&models.Movement{})
	if filter.VillageID != 0 {
		switch filter.Direction {
		case models.DirectionIncoming:
			query = query.Where("target_village_id = ?", filter.VillageID)
		case models.DirectionOutgoing:
			query = query.Where("source_village_id = ?", filter.VillageID)
		default:
			query = query.Where("source_village_id = ? OR target_village_id = ?", filter.VillageID, filter.VillageID)
		}
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Mission != "" {
		query = query.Where("kind = ?", filter.Mission)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var out []models.Movement
	if err := query.Order("arrive_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list movements")
	}
	return out, nil
}

// FindRecallable returns reinforcements from one village to another, newest first.
func (r *MovementRepository) FindRecallable(accountID, fromVillageID, toVillageID uint) ([]models.Movement, error) {
	var out []models.Movement
	err := forUpdate(r.db).
		Where("kind = ? AND account_id = ? AND source_village_id = ? AND target_village_id = ?",
			string(movement.KindReinforce), accountID, fromVillageID, toVillageID).
		Where("status IN ?", []string{string(movement.StatusScheduled), string(movement.StatusEnRoute)}).
		Order("depart_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to find reinforcements")
	}
	return out, nil
}

func (r *MovementRepository) ListByWaveGroup(groupID string) ([]models.Movement, error) {
	var out []models.Movement
	if err := r.db.Where("wave_group_id = ?", groupID).Order("wave_index ASC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list wave movements")
	}
	return out, nil
}

// ListSince returns movements created at or after since, oldest first.
func (r *MovementRepository) ListSince(since time.Time) ([]models.Movement, error) {
	var out []models.Movement
	if err := r.db.Where("created_at >= ?", since).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list movements")
	}
	return out, nil
}

func (r *MovementRepository) SetWarnings(m *models.Movement) error {
	return r.db.Model(&models.Movement{}).Where("id = ?", m.ID).Update("warnings", m.Warnings).Error
}
