// Package quality scores UWB observations and detects non-line-of-sight conditions.
package quality

import (
	"gonum.org/v1/gonum/stat"
	"gps-no-calibration/internal/models"
	"time"
)

const (
	MinimumStrength         = 0.5
	MinimumConfidence       = 0.6
	WeakRSSI                = -75.0
	MaximumErrorEstimate    = 3.0
	NLoSThresholdPercentage = 50.0
	DefaultQualityThreshold = 0.5
)

type Assessment struct {
	IsAcceptable    bool     `json:"is_acceptable"`
	QualityScore    float64  `json:"quality_score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

type NLoSReport struct {
	Total                 int     `json:"total"`
	LineOfSightCount      int     `json:"line_of_sight_count"`
	LineOfSightPercentage float64 `json:"line_of_sight_percentage"`
	IsNLoSDetected        bool    `json:"is_nlos_detected"`
	Recommendation        string  `json:"recommendation,omitempty"`
}

type Statistics struct {
	TotalPoints           int     `json:"total_points"`
	ValidPoints           int     `json:"valid_points"`
	AverageQuality        float64 `json:"average_quality"`
	LineOfSightPercentage float64 `json:"line_of_sight_percentage"`
	AverageErrorEstimate  float64 `json:"average_error_estimate"`
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Evaluate scores one observation. Only strength and confidence decide acceptability;
// weak RSSI, large error estimates and NLoS are reported as non-blocking issues.
func Evaluate(observation models.ObservationPoint) Assessment {
	q := observation.Quality.Clamped()

	assessment := Assessment{
		IsAcceptable:    q.Strength >= MinimumStrength && q.Confidence >= MinimumConfidence,
		QualityScore:    Score(q),
		Issues:          []string{},
		Recommendations: []string{},
	}

	if q.Strength < MinimumStrength {
		assessment.Issues = append(assessment.Issues, "signal strength below 0.5")
		assessment.Recommendations = append(assessment.Recommendations, "move the tag closer to the antenna or remove obstacles")
	}
	if q.Confidence < MinimumConfidence {
		assessment.Issues = append(assessment.Issues, "measurement confidence below 0.6")
		assessment.Recommendations = append(assessment.Recommendations, "hold the tag still and collect for longer")
	}
	if observation.RSSI < WeakRSSI {
		assessment.Issues = append(assessment.Issues, "RSSI below -75 dBm")
		assessment.Recommendations = append(assessment.Recommendations, "check antenna orientation and reduce the distance to the tag")
	}
	if q.ErrorEstimate > MaximumErrorEstimate {
		assessment.Issues = append(assessment.Issues, "error estimate above 3 m")
		assessment.Recommendations = append(assessment.Recommendations, "recalibrate the antenna or check for reflective surfaces nearby")
	}
	if !q.IsLineOfSight {
		assessment.Issues = append(assessment.Issues, "no line of sight")
		assessment.Recommendations = append(assessment.Recommendations, "place the tag where the antenna can see it directly")
	}

	return assessment
}

// Score weights strength and confidence, with a bonus for line of sight. Range [0,1].
func Score(q models.SignalQuality) float64 {
	los := 0.0
	if q.IsLineOfSight {
		los = 1
	}
	return 0.5*q.Strength + 0.3*q.Confidence + 0.2*los
}

// DetectNLoS flags the batch when strictly less than half of it has line of sight.
// An empty batch carries no evidence and is never flagged.
func DetectNLoS(observations []models.ObservationPoint) NLoSReport {
	report := NLoSReport{Total: len(observations)}
	if len(observations) == 0 {
		return report
	}

	for _, o := range observations {
		if o.Quality.IsLineOfSight {
			report.LineOfSightCount++
		}
	}

	report.LineOfSightPercentage = float64(report.LineOfSightCount) / float64(report.Total) * 100
	report.IsNLoSDetected = report.LineOfSightPercentage < NLoSThresholdPercentage
	if report.IsNLoSDetected {
		report.Recommendation = "most samples are non-line-of-sight; reposition the tag or the antenna"
	}
	return report
}

// Filter keeps observations whose strength reaches threshold and, when window is set,
// whose timestamp lies inside it. The input slice is not modified.
func Filter(observations []models.ObservationPoint, threshold float64, window *TimeRange) []models.ObservationPoint {
	filtered := make([]models.ObservationPoint, 0, len(observations))
	for _, o := range observations {
		if o.Quality.Strength < threshold {
			continue
		}
		if window != nil && !window.Contains(o.Timestamp) {
			continue
		}
		filtered = append(filtered, o)
	}
	return filtered
}

func Accepted(observations []models.ObservationPoint) []models.ObservationPoint {
	accepted := make([]models.ObservationPoint, 0, len(observations))
	for _, o := range observations {
		if Evaluate(o).IsAcceptable {
			accepted = append(accepted, o)
		}
	}
	return accepted
}

// Summarize computes statistics over the accepted subset. An empty input, or one with
// nothing accepted, yields zero averages.
func Summarize(observations []models.ObservationPoint) Statistics {
	stats := Statistics{TotalPoints: len(observations)}

	accepted := Accepted(observations)
	stats.ValidPoints = len(accepted)
	if len(accepted) == 0 {
		return stats
	}

	scores := make([]float64, len(accepted))
	errs := make([]float64, len(accepted))
	los := make([]float64, len(accepted))
	for i, o := range accepted {
		q := o.Quality.Clamped()
		scores[i] = Score(q)
		errs[i] = q.ErrorEstimate
		if q.IsLineOfSight {
			los[i] = 100
		}
	}

	stats.AverageQuality = stat.Mean(scores, nil)
	stats.AverageErrorEstimate = stat.Mean(errs, nil)
	stats.LineOfSightPercentage = stat.Mean(los, nil)
	return stats
}
