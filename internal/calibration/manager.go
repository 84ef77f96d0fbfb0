package calibration

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"sort"
	"sync"
)

// Store is the persistence collaborator for calibration data. An empty antennaID loads
// every antenna.
type Store interface {
	LoadCalibrationData(ctx context.Context, antennaID string) ([]models.CalibrationData, error)
	SaveCalibrationData(ctx context.Context, data models.CalibrationData) error
	DeleteCalibrationData(ctx context.Context, antennaID string) error
}

// Manager owns one Session per antenna. Persistence is best effort: a failing store is
// logged and reported but never rolls back in-memory state.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store   Store
	options []Option
	logger  zerolog.Logger
}

func NewManager(store Store, logger zerolog.Logger, opts ...Option) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		options:  append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
	}
}

func (m *Manager) Session(antennaID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[antennaID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[antennaID]; ok {
		return s
	}
	s = NewSession(antennaID, m.options...)
	m.sessions[antennaID] = s
	return s
}

func (m *Manager) AntennaIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	data, err := m.store.LoadCalibrationData(ctx, "")
	if err != nil {
		return &calerr.PersistenceError{Op: "load", Err: err}
	}

	for _, d := range data {
		m.Session(d.AntennaID).Restore(d)
	}

	m.logger.Info().
		Int("antennas", len(data)).
		Msg("Calibration data loaded")

	return nil
}

func (m *Manager) Reload(ctx context.Context, antennaID string) error {
	if m.store == nil {
		return nil
	}

	data, err := m.store.LoadCalibrationData(ctx, antennaID)
	if err != nil {
		return &calerr.PersistenceError{Op: "reload", Err: err}
	}

	if len(data) == 0 {
		m.mu.Lock()
		delete(m.sessions, antennaID)
		m.mu.Unlock()

		m.logger.Info().
			Str("antenna_id", antennaID).
			Msg("Calibration removed")
		return nil
	}

	m.Session(antennaID).Restore(data[0])
	m.logger.Debug().
		Str("antenna_id", antennaID).
		Msg("Calibration reloaded")
	return nil
}

// Replace clears antennaID's points, adds the given pairs and computes the transform.
func (m *Manager) Replace(ctx context.Context, antennaID string, pairs []estimator.PointPair) (geometry.AffineTransform, error) {
	s := m.Session(antennaID)
	s.Clear()
	for _, p := range pairs {
		s.AddPoint(p.Reference, p.Measured)
	}
	return m.ComputeTransform(ctx, antennaID)
}

// ComputeTransform fits antennaID and persists the result. The transform is returned
// together with a PersistenceError when only the save failed.
func (m *Manager) ComputeTransform(ctx context.Context, antennaID string) (geometry.AffineTransform, error) {
	s := m.Session(antennaID)

	transform, err := s.ComputeTransform()
	if err != nil {
		return geometry.AffineTransform{}, err
	}

	if err := m.persist(ctx, s); err != nil {
		return transform, err
	}
	return transform, nil
}

func (m *Manager) Install(ctx context.Context, s *Session) error {
	m.mu.Lock()
	m.sessions[s.AntennaID()] = s
	m.mu.Unlock()

	return m.persist(ctx, s)
}

// Apply maps p through antennaID's transform. Uncalibrated or deactivated antennas
// return p unchanged.
func (m *Manager) Apply(antennaID string, p geometry.Point3D) geometry.Point3D {
	m.mu.RLock()
	s, ok := m.sessions[antennaID]
	m.mu.RUnlock()
	if !ok || !s.IsActive() {
		return p
	}
	return s.ApplyTransform(p)
}

// SetActive toggles whether antennaID's calibration is applied, keeping its points and
// transform, and persists the flag.
func (m *Manager) SetActive(ctx context.Context, antennaID string, active bool) error {
	m.mu.RLock()
	s, ok := m.sessions[antennaID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: antenna %s", calerr.ErrNoCalibrationData, antennaID)
	}

	s.SetActive(active)
	m.logger.Info().
		Str("antenna_id", antennaID).
		Bool("active", active).
		Msg("Calibration activation changed")
	return m.persist(ctx, s)
}

func (m *Manager) Delete(ctx context.Context, antennaID string) error {
	m.mu.Lock()
	delete(m.sessions, antennaID)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.DeleteCalibrationData(ctx, antennaID); err != nil {
		m.logger.Error().Err(err).
			Str("antenna_id", antennaID).
			Msg("Failed to delete calibration data")
		return &calerr.PersistenceError{Op: "delete", Err: err}
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	if m.store == nil {
		return nil
	}

	if err := m.store.SaveCalibrationData(ctx, s.Snapshot()); err != nil {
		m.logger.Error().Err(err).
			Str("antenna_id", s.AntennaID()).
			Msg("Failed to persist calibration data")
		return &calerr.PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func IsPersistenceOnly(err error) bool {
	var pe *calerr.PersistenceError
	return errors.As(err, &pe)
}
