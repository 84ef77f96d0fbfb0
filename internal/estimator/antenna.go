package estimator

import (
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/geometry"
	"sort"
)

const (
	MinimumTags                   = 3
	DefaultMinimumTagObservations = 3
)

// TagObservations maps a tag id to the positions an antenna measured for it in its local frame.
type TagObservations map[string][]geometry.Point3D

// AntennaConfig is the estimated world pose of one antenna.
type AntennaConfig struct {
	AntennaID      string                   `json:"antenna_id"`
	Position       geometry.Point3D         `json:"position"`
	Heading        float64                  `json:"heading"`
	HeadingDegrees float64                  `json:"heading_degrees"`
	RMSE           float64                  `json:"rmse"`
	TagCount       int                      `json:"tag_count"`
	Transform      geometry.AffineTransform `json:"transform"`
}

// AntennaEstimate carries either a config or the reason the antenna could not be calibrated.
type AntennaEstimate struct {
	Config AntennaConfig
	Err    error
}

// CalibrateAntenna averages each tag's local observations and fits the local-to-world
// similarity transform over the tag means. Tags with fewer than minObservations samples
// or without a known world position are ignored.
func CalibrateAntenna(antennaID string, local TagObservations, truth map[string]geometry.Point3D, minObservations int) (AntennaConfig, error) {
	if minObservations <= 0 {
		minObservations = DefaultMinimumTagObservations
	}

	tagIDs := make([]string, 0, len(local))
	for tagID, observations := range local {
		if _, known := truth[tagID]; !known {
			continue
		}
		if len(observations) < minObservations {
			continue
		}
		tagIDs = append(tagIDs, tagID)
	}
	sort.Strings(tagIDs)

	if len(tagIDs) < MinimumTags {
		return AntennaConfig{}, &calerr.InsufficientTagsError{
			AntennaID: antennaID,
			Required:  MinimumTags,
			Found:     len(tagIDs),
		}
	}

	pairs := make([]PointPair, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		pairs = append(pairs, PointPair{
			Reference: truth[tagID],
			Measured:  geometry.Centroid(local[tagID]),
		})
	}

	transform, err := LeastSquares(pairs)
	if err != nil {
		return AntennaConfig{}, err
	}

	return AntennaConfig{
		AntennaID:      antennaID,
		Position:       transform.Translation(),
		Heading:        transform.Heading(),
		HeadingDegrees: transform.HeadingDegrees(),
		RMSE:           transform.Accuracy,
		TagCount:       len(tagIDs),
		Transform:      transform,
	}, nil
}

// CalibrateAntennas runs CalibrateAntenna for every antenna. A failing antenna never
// affects the others.
func CalibrateAntennas(local map[string]TagObservations, truth map[string]geometry.Point3D, minObservations int) map[string]AntennaEstimate {
	results := make(map[string]AntennaEstimate, len(local))
	for antennaID, observations := range local {
		config, err := CalibrateAntenna(antennaID, observations, truth, minObservations)
		results[antennaID] = AntennaEstimate{Config: config, Err: err}
	}
	return results
}
