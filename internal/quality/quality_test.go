package quality

import (
	"github.com/stretchr/testify/assert"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"testing"
	"time"
)

func observation(strength, confidence float64, los bool) models.ObservationPoint {
	return models.ObservationPoint{
		AntennaID: "antenna-1",
		Position:  geometry.NewPoint(1, 1, 0),
		Quality:   models.NewSignalQuality(strength, los, confidence, 0.5),
		RSSI:      -60,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestEvaluateBoundary(t *testing.T) {
	tests := []struct {
		name       string
		strength   float64
		confidence float64
		los        bool
		rssi       float64
		errEst     float64
		acceptable bool
	}{
		{"both at threshold", 0.5, 0.6, true, -60, 0.5, true},
		{"strength just below", 0.4999, 0.9, true, -60, 0.5, false},
		{"confidence just below", 0.9, 0.5999, true, -60, 0.5, false},
		{"weak rssi is not blocking", 0.9, 0.9, true, -90, 0.5, true},
		{"large error is not blocking", 0.9, 0.9, true, -60, 10, true},
		{"nlos is not blocking", 0.9, 0.9, false, -90, 10, true},
		{"everything bad", 0.1, 0.1, false, -95, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := observation(tt.strength, tt.confidence, tt.los)
			o.RSSI = tt.rssi
			o.Quality.ErrorEstimate = tt.errEst

			got := Evaluate(o)
			assert.Equal(t, tt.acceptable, got.IsAcceptable)
			assert.Len(t, got.Recommendations, len(got.Issues))
			assert.GreaterOrEqual(t, got.QualityScore, 0.0)
			assert.LessOrEqual(t, got.QualityScore, 1.0)
		})
	}
}

func TestEvaluateIssues(t *testing.T) {
	o := observation(0.9, 0.9, true)
	o.RSSI = -80
	o.Quality.ErrorEstimate = 3.5

	got := Evaluate(o)
	assert.True(t, got.IsAcceptable)
	assert.Contains(t, got.Issues, "RSSI below -75 dBm")
	assert.Contains(t, got.Issues, "error estimate above 3 m")
	assert.Len(t, got.Issues, 2)
	assert.InDelta(t, 0.5*0.9+0.3*0.9+0.2, got.QualityScore, 1e-12)
}

func TestDetectNLoS(t *testing.T) {
	batch := func(los, nlos int) []models.ObservationPoint {
		var out []models.ObservationPoint
		for i := 0; i < los; i++ {
			out = append(out, observation(0.9, 0.9, true))
		}
		for i := 0; i < nlos; i++ {
			out = append(out, observation(0.9, 0.9, false))
		}
		return out
	}

	t.Run("empty", func(t *testing.T) {
		report := DetectNLoS(nil)
		assert.False(t, report.IsNLoSDetected)
		assert.Equal(t, 0, report.Total)
		assert.Zero(t, report.LineOfSightPercentage)
	})

	t.Run("exactly half is not nlos", func(t *testing.T) {
		report := DetectNLoS(batch(2, 2))
		assert.InDelta(t, 50, report.LineOfSightPercentage, 1e-12)
		assert.False(t, report.IsNLoSDetected)
	})

	t.Run("below half is nlos", func(t *testing.T) {
		report := DetectNLoS(batch(2, 3))
		assert.InDelta(t, 40, report.LineOfSightPercentage, 1e-12)
		assert.True(t, report.IsNLoSDetected)
		assert.NotEmpty(t, report.Recommendation)
	})
}

func TestFilter(t *testing.T) {
	base := time.Unix(1700000000, 0)
	obs := []models.ObservationPoint{
		observation(0.2, 0.9, true),
		observation(0.5, 0.9, true),
		observation(0.8, 0.9, true),
	}
	for i := range obs {
		obs[i].Timestamp = base.Add(time.Duration(i) * time.Second)
	}

	got := Filter(obs, DefaultQualityThreshold, nil)
	assert.Len(t, got, 2)
	assert.Len(t, obs, 3)

	window := &TimeRange{Start: base.Add(2 * time.Second), End: base.Add(5 * time.Second)}
	got = Filter(obs, DefaultQualityThreshold, window)
	if assert.Len(t, got, 1) {
		assert.InDelta(t, 0.8, got[0].Quality.Strength, 1e-12)
	}
}

func TestSummarize(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, Statistics{}, Summarize(nil))
	})

	t.Run("nothing accepted", func(t *testing.T) {
		stats := Summarize([]models.ObservationPoint{observation(0.1, 0.1, true)})
		assert.Equal(t, 1, stats.TotalPoints)
		assert.Equal(t, 0, stats.ValidPoints)
		assert.Zero(t, stats.AverageQuality)
	})

	t.Run("averages over accepted subset", func(t *testing.T) {
		a := observation(1, 1, true)
		a.Quality.ErrorEstimate = 1
		b := observation(0.5, 0.6, false)
		b.Quality.ErrorEstimate = 3
		rejected := observation(0.1, 0.1, false)
		rejected.Quality.ErrorEstimate = 100

		stats := Summarize([]models.ObservationPoint{a, b, rejected})
		assert.Equal(t, 3, stats.TotalPoints)
		assert.Equal(t, 2, stats.ValidPoints)
		assert.InDelta(t, 2, stats.AverageErrorEstimate, 1e-12)
		assert.InDelta(t, 50, stats.LineOfSightPercentage, 1e-12)
		assert.InDelta(t, (1.0+(0.25+0.18))/2, stats.AverageQuality, 1e-12)
	})
}
