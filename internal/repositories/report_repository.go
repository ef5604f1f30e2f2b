package repositories

import (
	"time"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/pkg/errors"
	"gorm.io/gorm"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) WithTx(tx *gorm.DB) *ReportRepository {
	return &ReportRepository{db: tx}
}

func (r *ReportRepository) Create(report *models.CombatReport) error {
	if err := r.db.Create(report).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create combat report")
	}
	return nil
}

func (r *ReportRepository) GetByID(id string) (*models.CombatReport, error) {
	var report models.CombatReport
	if err := r.db.Where("id = ?", id).First(&report).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "report %s not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get report")
	}
	return &report, nil
}

// ListForAccount returns reports where the account attacked or defended, newest first.
func (r *ReportRepository) ListForAccount(accountID uint, limit int) ([]models.CombatReport, error) {
	var reports []models.CombatReport
	query := r.db.Where("attacker_account_id = ? OR defender_account_id = ?", accountID, accountID).
		Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&reports).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list reports")
	}
	return reports, nil
}

func (r *ReportRepository) ListSince(since time.Time) ([]models.CombatReport, error) {
	var reports []models.CombatReport
	if err := r.db.Where("occurred_at >= ?", since).Order("occurred_at ASC, id ASC").Find(&reports).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list reports")
	}
	return reports, nil
}
