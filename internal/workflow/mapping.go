package workflow

import (
	"gonum.org/v1/gonum/stat"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/quality"
	"sort"
)

func (c Config) accepts(o models.ObservationPoint) bool {
	if o.Quality.Strength <= c.MinStrength {
		return false
	}
	if c.RequireLineOfSight && !o.Quality.IsLineOfSight {
		return false
	}
	return true
}

// withinRadius drops samples farther than AcceptanceRadius from the per-axis
// median of the window. Samples are in the antenna's own frame, so the median
// is the only center they can be compared against before calibration.
func (c Config) withinRadius(samples []models.ObservationPoint) []models.ObservationPoint {
	if c.AcceptanceRadius <= 0 || len(samples) == 0 {
		return samples
	}
	center := medianPosition(samples)
	kept := samples[:0:0]
	for _, o := range samples {
		if o.Position.DistanceTo(center) <= c.AcceptanceRadius {
			kept = append(kept, o)
		}
	}
	return kept
}

func medianPosition(samples []models.ObservationPoint) geometry.Point3D {
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	zs := make([]float64, len(samples))
	for i, o := range samples {
		xs[i], ys[i], zs[i] = o.Position.X, o.Position.Y, o.Position.Z
	}
	median := func(v []float64) float64 {
		sort.Float64s(v)
		return stat.Quantile(0.5, stat.Empirical, v, nil)
	}
	return geometry.NewPoint(median(xs), median(ys), median(zs))
}

// buildMappings groups session samples by the reference point they were recorded for.
// A reference with no accepted sample gets no mapping.
func buildMappings(cfg Config, references []geometry.Point3D, sessions []*ObservationSession) []ReferenceObservationMapping {
	mappings := make([]ReferenceObservationMapping, 0, len(references))

	for i, reference := range references {
		var accepted []models.ObservationPoint
		perAntenna := map[string][]geometry.Point3D{}

		for _, s := range sessions {
			if s.ReferenceIndex != i {
				continue
			}
			var window []models.ObservationPoint
			for _, o := range s.Observations {
				if cfg.accepts(o) {
					window = append(window, o)
				}
			}
			for _, o := range cfg.withinRadius(window) {
				accepted = append(accepted, o)
				perAntenna[s.AntennaID] = append(perAntenna[s.AntennaID], o.Position)
			}
		}

		if len(accepted) == 0 {
			continue
		}

		positions := make([]geometry.Point3D, len(accepted))
		scores := make([]float64, len(accepted))
		for j, o := range accepted {
			positions[j] = o.Position
			scores[j] = quality.Score(o.Quality.Clamped())
		}

		centroids := make(map[string]geometry.Point3D, len(perAntenna))
		for antennaID, points := range perAntenna {
			centroids[antennaID] = geometry.Centroid(points)
		}

		centroid := geometry.Centroid(positions)
		mappings = append(mappings, ReferenceObservationMapping{
			ReferenceIndex:    i,
			ReferencePosition: reference,
			Observations:      accepted,
			CentroidPosition:  centroid,
			PositionError:     centroid.DistanceTo(reference),
			MappingQuality:    stat.Mean(scores, nil),
			AntennaCentroids:  centroids,
		})
	}

	return mappings
}

func buildPreview(sessions []*ObservationSession) []AntennaPreview {
	previews := make([]AntennaPreview, 0, len(sessions))
	for _, s := range sessions {
		positions := make([]geometry.Point3D, len(s.Observations))
		for i, o := range s.Observations {
			positions[i] = o.Position
		}
		previews = append(previews, AntennaPreview{
			AntennaID:  s.AntennaID,
			SessionID:  s.ID,
			Centroid:   geometry.Centroid(positions),
			Samples:    len(s.Observations),
			Statistics: quality.Summarize(s.Observations),
			NLoS:       quality.DetectNLoS(s.Observations),
		})
	}
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].AntennaID < previews[j].AntennaID
	})
	return previews
}
