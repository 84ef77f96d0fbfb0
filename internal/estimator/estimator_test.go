package estimator

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/geometry"
	"math"
	"math/rand"
	"testing"
)

// pairsFor returns pairs whose reference is truth applied to the measured point.
func pairsFor(truth geometry.AffineTransform, measured ...geometry.Point3D) []PointPair {
	pairs := make([]PointPair, len(measured))
	for i, m := range measured {
		pairs[i] = PointPair{Reference: truth.Apply(m), Measured: m}
	}
	return pairs
}

func TestExactAffineRecoversTransform(t *testing.T) {
	truths := []geometry.AffineTransform{
		geometry.Identity(),
		{A: 1.2, B: 0.3, C: -0.4, D: 0.9, Tx: 3, Ty: -2, ScaleZ: 1, TranslateZ: 0.25},
		geometry.FromRotation(math.Pi/2, 1, geometry.NewPoint(1, 1, 0)),
		{A: -2, B: 0.5, C: 0.1, D: 1.5, Tx: -10, Ty: 7.5, ScaleZ: 1},
	}

	for i, truth := range truths {
		pairs := pairsFor(truth,
			geometry.NewPoint(0, 0, 0),
			geometry.NewPoint(4, 1, 0),
			geometry.NewPoint(-1, 3, 0),
		)

		got, err := ExactAffine(pairs)
		require.NoError(t, err, "case %d", i)
		assert.True(t, got.ApproxEqual(truth, 1e-9), "case %d: got %+v want %+v", i, got, truth)
		assert.InDelta(t, 0, got.Accuracy, 1e-9)
	}
}

func TestExactAffineRejectsBadInput(t *testing.T) {
	t.Run("wrong count", func(t *testing.T) {
		_, err := ExactAffine(pairsFor(geometry.Identity(), geometry.NewPoint(0, 0, 0), geometry.NewPoint(1, 0, 0)))
		var insufficient *calerr.InsufficientPointsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 3, insufficient.Required)
		assert.Equal(t, 2, insufficient.Provided)
	})

	t.Run("collinear measured points", func(t *testing.T) {
		_, err := ExactAffine(pairsFor(geometry.Identity(),
			geometry.NewPoint(0, 0, 0),
			geometry.NewPoint(1, 1, 0),
			geometry.NewPoint(2, 2, 0),
		))
		assert.ErrorIs(t, err, calerr.ErrDegenerateGeometry)
		assert.ErrorIs(t, err, calerr.ErrSingularConfiguration)
	})

	t.Run("non finite", func(t *testing.T) {
		pairs := pairsFor(geometry.Identity(),
			geometry.NewPoint(0, 0, 0),
			geometry.NewPoint(1, 0, 0),
			geometry.NewPoint(0, 1, 0),
		)
		pairs[1].Measured.X = math.NaN()
		_, err := ExactAffine(pairs)
		var invalid *calerr.InvalidCalibrationDataError
		assert.ErrorAs(t, err, &invalid)
		assert.ErrorIs(t, err, calerr.ErrNonFiniteCoordinate)
	})
}

func TestLeastSquaresRecoversSimilarity(t *testing.T) {
	truth := geometry.FromRotation(0.7, 1.5, geometry.NewPoint(2, -3, 0.4))
	pairs := pairsFor(truth,
		geometry.NewPoint(0, 0, 0),
		geometry.NewPoint(5, 0, 0),
		geometry.NewPoint(0, 5, 0),
		geometry.NewPoint(3, 4, 1),
		geometry.NewPoint(-2, 6, 0.5),
	)

	got, err := LeastSquares(pairs)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(truth, 1e-9), "got %+v want %+v", got, truth)
	assert.InDelta(t, 0, got.Accuracy, 1e-9)
	assert.InDelta(t, 1.5, got.PlanarScale(), 1e-9)
	assert.InDelta(t, 0.7, got.Heading(), 1e-9)
}

func TestLeastSquaresNoiseIncreasesRMSE(t *testing.T) {
	truth := geometry.FromRotation(-0.3, 1, geometry.NewPoint(10, 4, 0))
	measured := []geometry.Point3D{
		geometry.NewPoint(0, 0, 0),
		geometry.NewPoint(6, 0, 0),
		geometry.NewPoint(6, 6, 0),
		geometry.NewPoint(0, 6, 0),
		geometry.NewPoint(3, 3, 0),
		geometry.NewPoint(1, 5, 0),
	}

	rng := rand.New(rand.NewSource(42))
	noise := make([]geometry.Point3D, len(measured))
	for i := range noise {
		noise[i] = geometry.NewPoint(rng.Float64()*2-1, rng.Float64()*2-1, 0)
	}

	previous := -1.0
	for _, magnitude := range []float64{0, 0.001, 0.01, 0.1, 0.5} {
		pairs := pairsFor(truth, measured...)
		for i := range pairs {
			pairs[i].Reference = pairs[i].Reference.Add(noise[i].Scale(magnitude))
		}

		got, err := LeastSquares(pairs)
		require.NoError(t, err)
		assert.Greater(t, got.Accuracy, previous, "magnitude %v", magnitude)
		previous = got.Accuracy
	}
}

func TestLeastSquaresDegenerate(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		for n := 0; n < 3; n++ {
			pairs := make([]PointPair, n)
			for i := range pairs {
				pairs[i] = PointPair{Measured: geometry.NewPoint(float64(i), 0, 0), Reference: geometry.NewPoint(float64(i), 0, 0)}
			}
			_, err := LeastSquares(pairs)
			var insufficient *calerr.InsufficientPointsError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, n, insufficient.Provided)
		}
	})

	t.Run("coincident measured points", func(t *testing.T) {
		pairs := []PointPair{
			{Reference: geometry.NewPoint(0, 0, 0), Measured: geometry.NewPoint(1, 1, 0)},
			{Reference: geometry.NewPoint(5, 0, 0), Measured: geometry.NewPoint(1, 1, 0)},
			{Reference: geometry.NewPoint(0, 5, 0), Measured: geometry.NewPoint(1, 1, 0)},
		}
		_, err := LeastSquares(pairs)
		assert.ErrorIs(t, err, calerr.ErrDegenerateGeometry)
	})

	t.Run("affine rejects collinear", func(t *testing.T) {
		pairs := pairsFor(geometry.Identity(),
			geometry.NewPoint(0, 0, 0),
			geometry.NewPoint(1, 0, 0),
			geometry.NewPoint(2, 0, 0),
			geometry.NewPoint(3, 0, 0),
		)
		_, err := LeastSquaresAffine(pairs)
		assert.ErrorIs(t, err, calerr.ErrDegenerateGeometry)

		_, err = LeastSquares(pairs)
		assert.NoError(t, err)
	})
}

func TestLeastSquaresAffineAndRigid(t *testing.T) {
	shear := geometry.AffineTransform{A: 1.1, B: 0.2, C: 0.35, D: 0.8, Tx: -1, Ty: 2, ScaleZ: 1}
	pairs := pairsFor(shear,
		geometry.NewPoint(0, 0, 0),
		geometry.NewPoint(4, 0, 0),
		geometry.NewPoint(0, 4, 0),
		geometry.NewPoint(4, 4, 0),
	)

	affine, err := Fit(ModelAffine, pairs)
	require.NoError(t, err)
	assert.True(t, affine.ApproxEqual(shear, 1e-9), "got %+v", affine)

	rigidTruth := geometry.FromRotation(1.2, 1, geometry.NewPoint(3, 3, 0))
	rigid, err := Fit(ModelRigid, pairsFor(rigidTruth,
		geometry.NewPoint(0, 0, 0),
		geometry.NewPoint(2, 0, 0),
		geometry.NewPoint(0, 3, 0),
	))
	require.NoError(t, err)
	assert.True(t, rigid.ApproxEqual(rigidTruth, 1e-9))
	assert.InDelta(t, 1, rigid.PlanarScale(), 1e-12)
}

func TestParseModel(t *testing.T) {
	for in, want := range map[string]Model{"": ModelSimilarity, "Rigid": ModelRigid, " affine ": ModelAffine} {
		got, err := ParseModel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseModel("projective")
	assert.Error(t, err)
}

func TestCalibrateAntenna(t *testing.T) {
	truth := geometry.FromRotation(math.Pi/4, 1, geometry.NewPoint(4, 2, 0))
	inverse, ok := truth.Inverse()
	require.True(t, ok)

	world := map[string]geometry.Point3D{
		"tag-a": geometry.NewPoint(0, 0, 0),
		"tag-b": geometry.NewPoint(6, 0, 0),
		"tag-c": geometry.NewPoint(0, 6, 0),
		"tag-d": geometry.NewPoint(6, 6, 0),
	}

	jittered := func(p geometry.Point3D) []geometry.Point3D {
		local := inverse.Apply(p)
		return []geometry.Point3D{
			local.Add(geometry.NewPoint(0.05, 0, 0)),
			local.Add(geometry.NewPoint(-0.05, 0, 0)),
			local.Add(geometry.NewPoint(0, 0.05, 0)),
			local.Add(geometry.NewPoint(0, -0.05, 0)),
		}
	}

	t.Run("recovers pose from tag means", func(t *testing.T) {
		local := TagObservations{}
		for id, p := range world {
			local[id] = jittered(p)
		}

		config, err := CalibrateAntenna("antenna-1", local, world, 3)
		require.NoError(t, err)
		assert.Equal(t, 4, config.TagCount)
		assert.True(t, config.Position.ApproxEqual(geometry.NewPoint(4, 2, 0), 1e-9), "got %s", config.Position)
		assert.InDelta(t, math.Pi/4, config.Heading, 1e-9)
		assert.InDelta(t, 45, config.HeadingDegrees, 1e-7)
		assert.InDelta(t, 0, config.RMSE, 1e-9)
	})

	t.Run("two qualifying tags fail without affecting others", func(t *testing.T) {
		good := TagObservations{}
		for id, p := range world {
			good[id] = jittered(p)
		}
		poor := TagObservations{
			"tag-a": jittered(world["tag-a"]),
			"tag-b": jittered(world["tag-b"]),
			"tag-c": jittered(world["tag-c"])[:2],
			"tag-x": jittered(geometry.NewPoint(9, 9, 0)),
		}

		results := CalibrateAntennas(map[string]TagObservations{
			"antenna-good": good,
			"antenna-poor": poor,
		}, world, 3)

		require.Len(t, results, 2)
		assert.NoError(t, results["antenna-good"].Err)
		assert.Equal(t, 4, results["antenna-good"].Config.TagCount)

		var tagsErr *calerr.InsufficientTagsError
		require.True(t, errors.As(results["antenna-poor"].Err, &tagsErr))
		assert.Equal(t, "antenna-poor", tagsErr.AntennaID)
		assert.Equal(t, 3, tagsErr.Required)
		assert.Equal(t, 2, tagsErr.Found)
	})
}

func TestLeastSquaresAffineThreePairsIsExact(t *testing.T) {
	shear := geometry.AffineTransform{A: 1.1, B: 0.2, C: 0.35, D: 0.8, Tx: -1, Ty: 2, ScaleZ: 1}
	pairs := pairsFor(shear, geometry.NewPoint(0, 0, 0), geometry.NewPoint(4, 1, 0), geometry.NewPoint(-1, 3, 0))

	got, err := LeastSquaresAffine(pairs)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(shear, 1e-9))
	assert.InDelta(t, 0, got.Accuracy, 1e-9)

	_, err = LeastSquaresAffine(pairsFor(geometry.Identity(),
		geometry.NewPoint(0, 0, 0), geometry.NewPoint(1, 1, 0), geometry.NewPoint(2, 2, 0)))
	assert.ErrorIs(t, err, calerr.ErrSingularConfiguration)
}
