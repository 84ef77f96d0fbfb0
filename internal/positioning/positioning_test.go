package positioning

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/geometry"
	"testing"
)

func rangesTo(target geometry.Point3D, anchors map[string]geometry.Point3D, order ...string) []RangeMeasurement {
	out := make([]RangeMeasurement, 0, len(order))
	for _, id := range order {
		out = append(out, RangeMeasurement{
			AntennaID:       id,
			AntennaPosition: anchors[id],
			Distance:        anchors[id].PlanarDistanceTo(target),
		})
	}
	return out
}

var anchors = map[string]geometry.Point3D{
	"a": geometry.NewPoint(0, 0, 2),
	"b": geometry.NewPoint(10, 0, 2),
	"c": geometry.NewPoint(0, 8, 2),
	"d": geometry.NewPoint(10, 8, 2),
}

func TestTrilaterateRoundTrip(t *testing.T) {
	targets := []geometry.Point3D{
		geometry.NewPoint(3, 4, 0),
		geometry.NewPoint(7.25, 1.5, 0),
		geometry.NewPoint(-2, 11, 0),
	}

	for _, target := range targets {
		got, ok := Trilaterate(rangesTo(target, anchors, "a", "b", "c"))
		require.True(t, ok)
		assert.InDelta(t, target.X, got.X, 1e-6)
		assert.InDelta(t, target.Y, got.Y, 1e-6)
		assert.InDelta(t, 2, got.Z, 1e-12)
	}
}

func TestTrilaterateRejects(t *testing.T) {
	t.Run("collinear anchors", func(t *testing.T) {
		line := map[string]geometry.Point3D{
			"a": geometry.NewPoint(0, 0, 0),
			"b": geometry.NewPoint(5, 5, 0),
			"c": geometry.NewPoint(10, 10, 0),
		}
		_, ok := Trilaterate(rangesTo(geometry.NewPoint(3, 1, 0), line, "a", "b", "c"))
		assert.False(t, ok)
	})

	t.Run("too few ranges", func(t *testing.T) {
		_, ok := Trilaterate(rangesTo(geometry.NewPoint(3, 1, 0), anchors, "a", "b"))
		assert.False(t, ok)
	})

	t.Run("non positive distances are skipped", func(t *testing.T) {
		target := geometry.NewPoint(3, 4, 0)
		ranges := rangesTo(target, anchors, "a", "b", "c", "d")
		ranges[1].Distance = 0

		got, ok := Trilaterate(ranges)
		require.True(t, ok)
		assert.InDelta(t, target.X, got.X, 1e-6)
		assert.InDelta(t, target.Y, got.Y, 1e-6)

		ranges[2].Distance = -1
		_, ok = Trilaterate(ranges)
		assert.False(t, ok)
	})
}

func TestMultilaterate(t *testing.T) {
	target := geometry.NewPoint(4, 3, 0)

	got, ok := Multilaterate(rangesTo(target, anchors, "a", "b", "c", "d"))
	require.True(t, ok)
	assert.InDelta(t, target.X, got.Position.X, 1e-6)
	assert.InDelta(t, target.Y, got.Position.Y, 1e-6)
	assert.InDelta(t, 0, got.Residual, 1e-6)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got.AnchorsUsed)

	noisy := rangesTo(target, anchors, "a", "b", "c", "d")
	noisy[3].Distance += 0.3
	est, ok := Multilaterate(noisy)
	require.True(t, ok)
	assert.Greater(t, est.Residual, 0.0)
	assert.InDelta(t, target.X, est.Position.X, 0.5)
	assert.InDelta(t, target.Y, est.Position.Y, 0.5)
}

func TestEstimatorStrategies(t *testing.T) {
	target := geometry.NewPoint(6, 2, 0)
	ranges := rangesTo(target, anchors, "a", "b", "c", "d")

	first, ok := NewEstimator(StrategyFirstThree).Estimate(ranges)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, first.AnchorsUsed)
	assert.InDelta(t, 0, first.Residual, 1e-6)

	all, ok := NewEstimator(StrategyLeastSquares).Estimate(ranges)
	require.True(t, ok)
	assert.Len(t, all.AnchorsUsed, 4)
	assert.True(t, first.Position.ApproxEqual(all.Position, 1e-6))

	s, err := ParseStrategy("LEAST-SQUARES")
	require.NoError(t, err)
	assert.Equal(t, StrategyLeastSquares, s)
	_, err = ParseStrategy("kalman")
	assert.Error(t, err)
}
