package services

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/positioning"
	"sort"
	"sync"
	"time"
)

type AntennaPositionLoader interface {
	LoadAntennaPositions(ctx context.Context, floorMapID string) ([]models.AntennaPosition, error)
}

type TagPositionWriter interface {
	WriteTagPosition(ctx context.Context, position *models.TagPosition) error
}

type PositionPublisher interface {
	PublishJson(topic string, data interface{}) error
}

type rangeReading struct {
	distance float64
	at       time.Time
}

// PositionService turns tag ranging into live positions. It keeps the latest distance per
// tag and anchor, drops readings older than maxAge and solves against the calibrated
// anchor positions of one floor map.
type PositionService struct {
	estimator  *positioning.Estimator
	loader     AntennaPositionLoader
	writer     TagPositionWriter
	publisher  PositionPublisher
	topicFor   func(tagID string) string
	floorMapID string
	maxAge     time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.RWMutex
	anchors map[string]geometry.Point3D
	ranges  map[string]map[string]rangeReading
	latest  map[string]models.TagPosition
}

type PositionServiceOption func(*PositionService)

func WithTagPositionWriter(writer TagPositionWriter) PositionServiceOption {
	return func(s *PositionService) {
		s.writer = writer
	}
}

func WithPositionPublisher(publisher PositionPublisher, topicFor func(tagID string) string) PositionServiceOption {
	return func(s *PositionService) {
		s.publisher = publisher
		s.topicFor = topicFor
	}
}

func WithPositionClock(now func() time.Time) PositionServiceOption {
	return func(s *PositionService) {
		s.now = now
	}
}

func NewPositionService(
	estimator *positioning.Estimator,
	loader AntennaPositionLoader,
	floorMapID string,
	maxAge time.Duration,
	logger zerolog.Logger,
	opts ...PositionServiceOption,
) *PositionService {
	s := &PositionService{
		estimator:  estimator,
		loader:     loader,
		floorMapID: floorMapID,
		maxAge:     maxAge,
		now:        time.Now,
		logger:     logger,
		anchors:    make(map[string]geometry.Point3D),
		ranges:     make(map[string]map[string]rangeReading),
		latest:     make(map[string]models.TagPosition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PositionService) FloorMapID() string {
	return s.floorMapID
}

func (s *PositionService) ReloadAnchors(ctx context.Context) error {
	positions, err := s.loader.LoadAntennaPositions(ctx, s.floorMapID)
	if err != nil {
		return err
	}

	anchors := make(map[string]geometry.Point3D, len(positions))
	for _, p := range positions {
		anchors[p.AntennaID] = p.Position()
	}

	s.mu.Lock()
	s.anchors = anchors
	s.mu.Unlock()

	s.logger.Info().
		Str("floor_map_id", s.floorMapID).
		Int("anchors", len(anchors)).
		Msg("Loaded anchor positions")

	return nil
}

func (s *PositionService) SetAnchor(antennaID string, position geometry.Point3D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors[antennaID] = position
}

// ProcessRangingData records the readings of tagID and, once three anchors with known
// positions have fresh ranges, estimates and publishes the tag position.
func (s *PositionService) ProcessRangingData(ctx context.Context, tagID string, data models.RangingDataArray) error {
	now := s.now()
	accepted := 0

	s.mu.Lock()
	readings, ok := s.ranges[tagID]
	if !ok {
		readings = make(map[string]rangeReading)
		s.ranges[tagID] = readings
	}

	for _, ranging := range data {
		if err := ranging.Validate(); err != nil {
			s.logger.Warn().Err(err).
				Str("tag_id", tagID).
				Msg("no valid ranging data")
			continue
		}

		anchorID := ranging.DestinationDevice
		if ranging.DestinationDevice == tagID {
			anchorID = ranging.SourceDevice
		} else if ranging.SourceDevice != tagID {
			s.logger.Warn().
				Str("tag_id", tagID).
				Str("source", ranging.SourceDevice).
				Str("destination", ranging.DestinationDevice).
				Msg("ranging data does not involve the reporting tag")
			continue
		}

		if ranging.Distance.RawDistance <= 0 {
			continue
		}

		at := ranging.Timestamp
		if at.IsZero() {
			at = now
		}
		readings[anchorID] = rangeReading{distance: ranging.Distance.RawDistance, at: at}
		accepted++
	}

	measurements := s.measurementsLocked(readings, now)
	s.mu.Unlock()

	if accepted == 0 {
		return fmt.Errorf("no usable ranging data for tag %s", tagID)
	}

	estimate, ok := s.estimator.Estimate(measurements)
	if !ok {
		s.logger.Debug().
			Str("tag_id", tagID).
			Int("anchors", len(measurements)).
			Msg("Not enough anchors for a position estimate")
		return nil
	}

	position := models.TagPosition{
		TagID:       tagID,
		Position:    estimate.Position,
		Anchors:     estimate.AnchorsUsed,
		Residual:    estimate.Residual,
		FloorMapID:  s.floorMapID,
		EstimatedAt: now,
	}

	s.mu.Lock()
	s.latest[tagID] = position
	s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.WriteTagPosition(ctx, &position); err != nil {
			s.logger.Error().Err(err).Str("tag_id", tagID).Msg("error writing tag position to InfluxDB")
		}
	}

	if s.publisher != nil && s.topicFor != nil {
		if err := s.publisher.PublishJson(s.topicFor(tagID), position); err != nil {
			s.logger.Error().Err(err).Str("tag_id", tagID).Msg("error publishing tag position")
		}
	}

	return nil
}

// measurementsLocked prunes stale readings and pairs the rest with known anchors, ordered
// by anchor id.
func (s *PositionService) measurementsLocked(readings map[string]rangeReading, now time.Time) []positioning.RangeMeasurement {
	var measurements []positioning.RangeMeasurement
	for anchorID, reading := range readings {
		if s.maxAge > 0 && now.Sub(reading.at) > s.maxAge {
			delete(readings, anchorID)
			continue
		}
		position, ok := s.anchors[anchorID]
		if !ok {
			continue
		}
		measurements = append(measurements, positioning.RangeMeasurement{
			AntennaID:       anchorID,
			AntennaPosition: position,
			Distance:        reading.distance,
		})
	}

	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].AntennaID < measurements[j].AntennaID
	})
	return measurements
}

func (s *PositionService) LatestPosition(tagID string) (models.TagPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[tagID]
	return p, ok
}
