package repositories

import (
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/pkg/errors"
	"gorm.io/gorm"
)

type WaveRepository struct {
	db *gorm.DB
}

func NewWaveRepository(db *gorm.DB) *WaveRepository {
	return &WaveRepository{db: db}
}

func (r *WaveRepository) WithTx(tx *gorm.DB) *WaveRepository {
	return &WaveRepository{db: tx}
}

func (r *WaveRepository) Create(group *models.WaveGroup) error {
	if err := r.db.Create(group).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return errors.Wrap(err, errors.ErrCodeAlreadyExists, "wave idempotency key already used")
		}
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create wave group")
	}
	return nil
}

// GetByIdempotencyKey returns nil when the key has not been used yet.
func (r *WaveRepository) GetByIdempotencyKey(key string) (*models.WaveGroup, error) {
	var group models.WaveGroup
	if err := r.db.Where("idempotency_key = ?", key).First(&group).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to look up wave group")
	}
	return &group, nil
}

func (r *WaveRepository) GetByID(id string) (*models.WaveGroup, error) {
	var group models.WaveGroup
	if err := r.db.Where("id = ?", id).First(&group).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "wave group %s not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get wave group")
	}
	return &group, nil
}

// SaveOutcome stores the accepted count and rejections decided after creation.
func (r *WaveRepository) SaveOutcome(group *models.WaveGroup) error {
	err := r.db.Model(&models.WaveGroup{}).Where("id = ?", group.ID).Updates(map[string]interface{}{
		"accepted_count": group.AcceptedCount,
		"rejections":     group.Rejections,
	}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update wave group")
	}
	return nil
}
