package services

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/calibration"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/workflow"
)

type CalibrationRecords interface {
	CreateOrUpdate(ctx context.Context, record *models.CalibrationRecord) error
	FindByAntennaID(ctx context.Context, antennaID string) (*models.CalibrationRecord, error)
	FindAll(ctx context.Context) ([]*models.CalibrationRecord, error)
	Delete(ctx context.Context, antennaID string) error
}

type AntennaPositions interface {
	CreateOrUpdate(ctx context.Context, position *models.AntennaPosition) error
	FindByFloorMap(ctx context.Context, floorMapID string) ([]*models.AntennaPosition, error)
	DeleteByAntenna(ctx context.Context, antennaID string) error
}

// CalibrationStore is the persistence collaborator backed by the Postgres repositories.
type CalibrationStore struct {
	calibrations CalibrationRecords
	positions    AntennaPositions
	logger       zerolog.Logger
}

func NewCalibrationStore(calibrations CalibrationRecords, positions AntennaPositions, logger zerolog.Logger) *CalibrationStore {
	return &CalibrationStore{
		calibrations: calibrations,
		positions:    positions,
		logger:       logger,
	}
}

func (s *CalibrationStore) LoadCalibrationData(ctx context.Context, antennaID string) ([]models.CalibrationData, error) {
	if antennaID != "" {
		record, err := s.calibrations.FindByAntennaID(ctx, antennaID)
		if err != nil {
			return nil, fmt.Errorf("error loading calibration of antenna %s: %w", antennaID, err)
		}
		if record == nil {
			return nil, nil
		}
		return []models.CalibrationData{record.ToData()}, nil
	}

	records, err := s.calibrations.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading calibrations: %w", err)
	}

	data := make([]models.CalibrationData, 0, len(records))
	for _, record := range records {
		data = append(data, record.ToData())
	}
	return data, nil
}

func (s *CalibrationStore) SaveCalibrationData(ctx context.Context, data models.CalibrationData) error {
	if data.AntennaID == "" {
		return fmt.Errorf("antenna_id is required")
	}

	if err := s.calibrations.CreateOrUpdate(ctx, data.ToRecord()); err != nil {
		return fmt.Errorf("error saving calibration of antenna %s: %w", data.AntennaID, err)
	}

	s.logger.Info().
		Str("antenna_id", data.AntennaID).
		Int("points", len(data.Points)).
		Bool("calibrated", data.IsCalibrated()).
		Msg("Calibration data saved")

	return nil
}

// DeleteCalibrationData removes the calibration and every stored position of the antenna.
func (s *CalibrationStore) DeleteCalibrationData(ctx context.Context, antennaID string) error {
	if err := s.calibrations.Delete(ctx, antennaID); err != nil {
		return fmt.Errorf("error deleting calibration of antenna %s: %w", antennaID, err)
	}
	if err := s.positions.DeleteByAntenna(ctx, antennaID); err != nil {
		return fmt.Errorf("error deleting positions of antenna %s: %w", antennaID, err)
	}

	s.logger.Info().Str("antenna_id", antennaID).Msg("Calibration data deleted")

	return nil
}

func (s *CalibrationStore) SaveAntennaPosition(ctx context.Context, position models.AntennaPosition) error {
	if err := position.Validate(); err != nil {
		return fmt.Errorf("invalid antenna position: %w", err)
	}

	if err := s.positions.CreateOrUpdate(ctx, &position); err != nil {
		return fmt.Errorf("error saving position of antenna %s: %w", position.AntennaID, err)
	}

	s.logger.Info().
		Str("antenna_id", position.AntennaID).
		Str("floor_map_id", position.FloorMapID).
		Float64("x", position.X).
		Float64("y", position.Y).
		Float64("heading", position.Heading).
		Msg("Antenna position saved")

	return nil
}

func (s *CalibrationStore) LoadAntennaPositions(ctx context.Context, floorMapID string) ([]models.AntennaPosition, error) {
	positions, err := s.positions.FindByFloorMap(ctx, floorMapID)
	if err != nil {
		return nil, fmt.Errorf("error loading antenna positions of floor map %s: %w", floorMapID, err)
	}

	out := make([]models.AntennaPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, *p)
	}
	return out, nil
}

var (
	_ calibration.Store      = (*CalibrationStore)(nil)
	_ workflow.PositionStore = (*CalibrationStore)(nil)
)
