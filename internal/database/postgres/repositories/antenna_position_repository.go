package repositories

import (
	"context"
	"errors"
	"gorm.io/gorm"
	"gps-no-calibration/internal/models"
)

type AntennaPositionRepository struct {
	db *gorm.DB
}

func NewAntennaPositionRepository(db *gorm.DB) *AntennaPositionRepository {
	return &AntennaPositionRepository{db: db}
}

// CreateOrUpdate keys positions by antenna and floor map.
func (r *AntennaPositionRepository) CreateOrUpdate(ctx context.Context, position *models.AntennaPosition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AntennaPosition
		result := tx.Where("antenna_id = ? AND floor_map_id = ?", position.AntennaID, position.FloorMapID).First(&existing)

		if result.Error == nil {
			updateMap := map[string]interface{}{
				"x":             position.X,
				"y":             position.Y,
				"z":             position.Z,
				"heading":       position.Heading,
				"accuracy":      position.Accuracy,
				"calibrated_at": position.CalibratedAt,
			}

			return tx.Model(&models.AntennaPosition{}).
				Where("id = ?", existing.ID).
				Updates(updateMap).Error

		} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tx.Create(position).Error

		} else {
			return result.Error
		}
	})
}

func (r *AntennaPositionRepository) FindByFloorMap(ctx context.Context, floorMapID string) ([]*models.AntennaPosition, error) {
	var positions []*models.AntennaPosition
	err := r.db.WithContext(ctx).
		Where("floor_map_id = ?", floorMapID).
		Order("antenna_id").
		Find(&positions).Error
	return positions, err
}

func (r *AntennaPositionRepository) DeleteByAntenna(ctx context.Context, antennaID string) error {
	return r.db.WithContext(ctx).
		Where("antenna_id = ?", antennaID).
		Delete(&models.AntennaPosition{}).Error
}
