// Package calibration holds the per-antenna calibration aggregate and the registry that
// loads, persists and applies it.
package calibration

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"sync"
	"time"
)

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func WithModel(model estimator.Model) Option {
	return func(s *Session) {
		s.model = model
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is the mutable calibration state of one antenna. Adding or removing a point
// drops the cached transform until ComputeTransform runs again.
type Session struct {
	mu sync.RWMutex

	antennaID string
	points    []models.CalibrationPoint
	transform *geometry.AffineTransform
	updatedAt time.Time
	isActive  bool
	model     estimator.Model

	now    func() time.Time
	logger zerolog.Logger
}

func NewSession(antennaID string, opts ...Option) *Session {
	s := &Session{
		antennaID: antennaID,
		isActive:  true,
		model:     estimator.ModelSimilarity,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) AntennaID() string {
	return s.antennaID
}

func (s *Session) AddPoint(reference, measured geometry.Point3D) models.CalibrationPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	point := models.CalibrationPoint{
		ID:                uuid.NewString(),
		AntennaID:         s.antennaID,
		ReferencePosition: reference,
		MeasuredPosition:  measured,
		Timestamp:         s.now(),
	}
	s.points = append(s.points, point)
	s.invalidate()

	return point
}

func (s *Session) RemovePoint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.points {
		if p.ID == id {
			s.points = append(s.points[:i:i], s.points[i+1:]...)
			s.invalidate()
			return nil
		}
	}
	return calerr.ErrPointNotFound
}

func (s *Session) Points() []models.CalibrationPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]models.CalibrationPoint, len(s.points))
	copy(points, s.points)
	return points
}

// ComputeTransform fits the session's model over all points and caches the result.
// An existing transform is left untouched when the fit fails, and is returned as is,
// timestamp included, when the points have not changed since it was computed.
func (s *Session) ComputeTransform() (geometry.AffineTransform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		return geometry.AffineTransform{}, calerr.ErrNoCalibrationData
	}
	if len(s.points) < estimator.MinimumPairs {
		return geometry.AffineTransform{}, &calerr.InsufficientPointsError{
			AntennaID: s.antennaID,
			Required:  estimator.MinimumPairs,
			Provided:  len(s.points),
		}
	}

	pairs := make([]estimator.PointPair, len(s.points))
	seen := make(map[geometry.Point3D]string, len(s.points))
	for i, p := range s.points {
		if !p.ReferencePosition.IsFinite() || !p.MeasuredPosition.IsFinite() {
			return geometry.AffineTransform{}, calerr.InvalidData(calerr.ErrNonFiniteCoordinate, "point %s has non-finite coordinates", p.ID)
		}
		if other, dup := seen[p.ReferencePosition]; dup {
			return geometry.AffineTransform{}, calerr.InvalidData(calerr.ErrDuplicateReference, "points %s and %s share reference %s", other, p.ID, p.ReferencePosition)
		}
		seen[p.ReferencePosition] = p.ID
		pairs[i] = estimator.PointPair{Reference: p.ReferencePosition, Measured: p.MeasuredPosition}
	}

	transform, err := estimator.Fit(s.model, pairs)
	if err != nil {
		return geometry.AffineTransform{}, err
	}

	if s.transform != nil {
		transform.Timestamp = s.transform.Timestamp
		if transform == *s.transform {
			return transform, nil
		}
	}

	transform.Timestamp = s.now()
	s.transform = &transform
	s.updatedAt = transform.Timestamp

	s.logger.Debug().
		Str("antenna_id", s.antennaID).
		Str("model", string(s.model)).
		Int("points", len(pairs)).
		Float64("rmse", transform.Accuracy).
		Msg("Calibration transform computed")

	return transform, nil
}

// ApplyTransform maps a local point into world coordinates. Without a valid transform
// the point is returned unchanged.
func (s *Session) ApplyTransform(p geometry.Point3D) geometry.Point3D {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validLocked() {
		return p
	}
	return s.transform.Apply(p)
}

func (s *Session) Transform() (geometry.AffineTransform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.transform == nil {
		return geometry.AffineTransform{}, false
	}
	return *s.transform, true
}

func (s *Session) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.validLocked()
}

func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isActive
}

func (s *Session) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isActive = active
	s.updatedAt = s.now()
}

func (s *Session) Snapshot() models.CalibrationData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := models.CalibrationData{
		AntennaID: s.antennaID,
		Points:    make([]models.CalibrationPoint, len(s.points)),
		UpdatedAt: s.updatedAt,
		IsActive:  s.isActive,
	}
	copy(data.Points, s.points)
	if s.transform != nil {
		transform := *s.transform
		data.Transform = &transform
	}
	return data
}

// Restore replaces the session state with persisted data. A stored transform that is
// no longer valid is dropped.
func (s *Session) Restore(data models.CalibrationData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = make([]models.CalibrationPoint, len(data.Points))
	copy(s.points, data.Points)
	s.transform = nil
	if data.Transform != nil && data.Transform.IsValid() {
		transform := *data.Transform
		s.transform = &transform
	}
	s.updatedAt = data.UpdatedAt
	s.isActive = data.IsActive
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = nil
	s.invalidate()
}

func (s *Session) invalidate() {
	s.transform = nil
	s.updatedAt = s.now()
}

func (s *Session) validLocked() bool {
	return s.transform != nil && s.transform.IsValid() && len(s.points) >= estimator.MinimumPairs
}
