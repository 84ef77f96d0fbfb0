package repositories

import (
	"context"
	"errors"
	"gorm.io/gorm"
	"gps-no-calibration/internal/models"
)

type CalibrationRepository struct {
	db *gorm.DB
}

func NewCalibrationRepository(db *gorm.DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

func (r *CalibrationRepository) CreateOrUpdate(ctx context.Context, record *models.CalibrationRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CalibrationRecord
		result := tx.Where("antenna_id = ?", record.AntennaID).First(&existing)

		if result.Error == nil {
			updateMap := map[string]interface{}{
				"points":    record.Points,
				"transform": record.Transform,
				"is_active": record.IsActive,
			}
			if record.UpdatedAt != nil {
				updateMap["updated_at"] = *record.UpdatedAt
			}

			return tx.Model(&models.CalibrationRecord{}).
				Where("antenna_id = ?", record.AntennaID).
				Updates(updateMap).Error

		} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tx.Create(record).Error

		} else {
			return result.Error
		}
	})
}

// FindByAntennaID returns nil without error when the antenna has no record.
func (r *CalibrationRepository) FindByAntennaID(ctx context.Context, antennaID string) (*models.CalibrationRecord, error) {
	var record models.CalibrationRecord
	err := r.db.WithContext(ctx).Where("antenna_id = ?", antennaID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *CalibrationRepository) FindAll(ctx context.Context) ([]*models.CalibrationRecord, error) {
	var records []*models.CalibrationRecord
	err := r.db.WithContext(ctx).Order("antenna_id").Find(&records).Error
	return records, err
}

func (r *CalibrationRepository) Delete(ctx context.Context, antennaID string) error {
	return r.db.WithContext(ctx).
		Where("antenna_id = ?", antennaID).
		Delete(&models.CalibrationRecord{}).Error
}
