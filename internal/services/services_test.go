package services

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/calibration"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/positioning"
	"math"
	"sort"
	"testing"
	"time"
)

type memoryRecords struct {
	rows map[string]models.CalibrationRecord
	err  error
}

func (m *memoryRecords) CreateOrUpdate(_ context.Context, record *models.CalibrationRecord) error {
	if m.err != nil {
		return m.err
	}
	m.rows[record.AntennaID] = *record
	return nil
}

func (m *memoryRecords) FindByAntennaID(_ context.Context, antennaID string) (*models.CalibrationRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rows[antennaID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memoryRecords) FindAll(context.Context) ([]*models.CalibrationRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.CalibrationRecord
	for _, r := range m.rows {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AntennaID < out[j].AntennaID })
	return out, nil
}

func (m *memoryRecords) Delete(_ context.Context, antennaID string) error {
	delete(m.rows, antennaID)
	return nil
}

type memoryPositions struct {
	rows []models.AntennaPosition
}

func (m *memoryPositions) CreateOrUpdate(_ context.Context, position *models.AntennaPosition) error {
	for i, p := range m.rows {
		if p.AntennaID == position.AntennaID && p.FloorMapID == position.FloorMapID {
			m.rows[i] = *position
			return nil
		}
	}
	m.rows = append(m.rows, *position)
	return nil
}

func (m *memoryPositions) FindByFloorMap(_ context.Context, floorMapID string) ([]*models.AntennaPosition, error) {
	var out []*models.AntennaPosition
	for i := range m.rows {
		if m.rows[i].FloorMapID == floorMapID {
			out = append(out, &m.rows[i])
		}
	}
	return out, nil
}

func (m *memoryPositions) DeleteByAntenna(_ context.Context, antennaID string) error {
	kept := m.rows[:0]
	for _, p := range m.rows {
		if p.AntennaID != antennaID {
			kept = append(kept, p)
		}
	}
	m.rows = kept
	return nil
}

func newStore() (*CalibrationStore, *memoryRecords, *memoryPositions) {
	records := &memoryRecords{rows: map[string]models.CalibrationRecord{}}
	positions := &memoryPositions{}
	return NewCalibrationStore(records, positions, zerolog.Nop()), records, positions
}

func TestCalibrationStoreRoundTripThroughManager(t *testing.T) {
	store, _, _ := newStore()
	ctx := context.Background()

	manager := calibration.NewManager(store, zerolog.Nop())
	truth := geometry.FromRotation(math.Pi/2, 1, geometry.NewPoint(1, 1, 0))
	var pairs []estimator.PointPair
	for _, ref := range []geometry.Point3D{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 5}} {
		inverse, ok := truth.Inverse()
		require.True(t, ok)
		pairs = append(pairs, estimator.PointPair{Reference: ref, Measured: inverse.Apply(ref)})
	}

	fitted, err := manager.Replace(ctx, "ant-1", pairs)
	require.NoError(t, err)

	restored := calibration.NewManager(store, zerolog.Nop())
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, []string{"ant-1"}, restored.AntennaIDs())

	p := geometry.NewPoint(2, 3, 0)
	assert.True(t, restored.Apply("ant-1", p).ApproxEqual(fitted.Apply(p), 1e-9))

	data, err := store.LoadCalibrationData(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestCalibrationStoreAntennaPositions(t *testing.T) {
	store, _, positions := newStore()
	ctx := context.Background()

	transform := geometry.FromRotation(0, 1, geometry.NewPoint(4, 2, 1))
	require.NoError(t, store.SaveAntennaPosition(ctx, models.NewAntennaPosition("ant-1", "floor-1", transform)))
	require.NoError(t, store.SaveAntennaPosition(ctx, models.NewAntennaPosition("ant-1", "floor-1", geometry.FromRotation(0, 1, geometry.NewPoint(5, 2, 1)))))
	require.NoError(t, store.SaveAntennaPosition(ctx, models.NewAntennaPosition("ant-2", "floor-2", transform)))

	loaded, err := store.LoadAntennaPositions(ctx, "floor-1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 5.0, loaded[0].X)

	assert.Error(t, store.SaveAntennaPosition(ctx, models.AntennaPosition{FloorMapID: "floor-1"}))

	require.NoError(t, store.DeleteCalibrationData(ctx, "ant-1"))
	assert.Len(t, positions.rows, 1)
}

func TestCalibrationStoreWrapsErrors(t *testing.T) {
	store, records, _ := newStore()
	records.err = errors.New("connection refused")

	_, err := store.LoadCalibrationData(context.Background(), "")
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, store.SaveCalibrationData(context.Background(), models.CalibrationData{AntennaID: "ant-1"}))
	assert.Error(t, store.SaveCalibrationData(context.Background(), models.CalibrationData{}))
}

type capturedPositions struct {
	written   []models.TagPosition
	published map[string]interface{}
}

func (c *capturedPositions) WriteTagPosition(_ context.Context, p *models.TagPosition) error {
	c.written = append(c.written, *p)
	return nil
}

func (c *capturedPositions) PublishJson(topic string, data interface{}) error {
	c.published[topic] = data
	return nil
}

func ranging(tag, anchor string, d float64) models.RangingData {
	r := models.RangingData{SourceDevice: tag, DestinationDevice: anchor}
	r.Distance.RawDistance = d
	return r
}

func newPositionService(t *testing.T, now *time.Time, capture *capturedPositions) *PositionService {
	t.Helper()

	store, _, _ := newStore()
	for id, p := range map[string]geometry.Point3D{
		"ant-1": {X: 0, Y: 0},
		"ant-2": {X: 10, Y: 0},
		"ant-3": {X: 0, Y: 10},
	} {
		require.NoError(t, store.SaveAntennaPosition(context.Background(), models.NewAntennaPosition(id, "floor-1", geometry.FromRotation(0, 1, p))))
	}

	s := NewPositionService(
		positioning.NewEstimator(positioning.StrategyFirstThree),
		store,
		"floor-1",
		2*time.Second,
		zerolog.Nop(),
		WithPositionClock(func() time.Time { return *now }),
		WithTagPositionWriter(capture),
		WithPositionPublisher(capture, func(tagID string) string { return "site/v1/positions/" + tagID }),
	)
	require.NoError(t, s.ReloadAnchors(context.Background()))
	return s
}

func TestPositionServiceEstimates(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	capture := &capturedPositions{published: map[string]interface{}{}}
	s := newPositionService(t, &now, capture)
	assert.Equal(t, "floor-1", s.FloorMapID())

	target := geometry.NewPoint(3, 4, 0)
	data := models.RangingDataArray{
		ranging("tag-1", "ant-1", target.DistanceTo(geometry.NewPoint(0, 0, 0))),
		ranging("tag-1", "ant-2", target.DistanceTo(geometry.NewPoint(10, 0, 0))),
		// Reported from the anchor's side.
		ranging("ant-3", "tag-1", target.DistanceTo(geometry.NewPoint(0, 10, 0))),
	}
	require.NoError(t, s.ProcessRangingData(context.Background(), "tag-1", data))

	position, ok := s.LatestPosition("tag-1")
	require.True(t, ok)
	assert.True(t, position.Position.ApproxEqual(target, 1e-6), "got %s", position.Position)
	assert.Equal(t, []string{"ant-1", "ant-2", "ant-3"}, position.Anchors)
	assert.Equal(t, "floor-1", position.FloorMapID)

	require.Len(t, capture.written, 1)
	assert.Contains(t, capture.published, "site/v1/positions/tag-1")
}

func TestPositionServiceDropsStaleRanges(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	capture := &capturedPositions{published: map[string]interface{}{}}
	s := newPositionService(t, &now, capture)
	ctx := context.Background()

	require.NoError(t, s.ProcessRangingData(ctx, "tag-1", models.RangingDataArray{ranging("tag-1", "ant-1", 5)}))

	now = now.Add(3 * time.Second)
	require.NoError(t, s.ProcessRangingData(ctx, "tag-1", models.RangingDataArray{
		ranging("tag-1", "ant-2", 8),
		ranging("tag-1", "ant-3", 7),
	}))

	_, ok := s.LatestPosition("tag-1")
	assert.False(t, ok)
	assert.Empty(t, capture.written)
}

func TestPositionServiceRejectsUnusableData(t *testing.T) {
	now := time.Now()
	s := newPositionService(t, &now, &capturedPositions{published: map[string]interface{}{}})

	err := s.ProcessRangingData(context.Background(), "tag-1", models.RangingDataArray{
		ranging("tag-1", "tag-1", 3),
		ranging("tag-1", "ant-1", 0),
		ranging("tag-9", "ant-1", 2),
	})
	assert.Error(t, err)
}
