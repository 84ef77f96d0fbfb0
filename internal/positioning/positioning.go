// Package positioning estimates tag positions from anchor ranges.
package positioning

import (
	"fmt"
	"gonum.org/v1/gonum/mat"
	"gps-no-calibration/internal/geometry"
	"math"
	"strings"
)

// determinantEpsilon rejects anchor layouts too close to collinear for a stable solve.
const determinantEpsilon = 1e-10

const MinimumAnchors = 3

type RangeMeasurement struct {
	AntennaID       string           `json:"antenna_id"`
	AntennaPosition geometry.Point3D `json:"antenna_position"`
	Distance        float64          `json:"distance"`
}

func (m RangeMeasurement) usable() bool {
	return m.Distance > 0 && !math.IsNaN(m.Distance) && !math.IsInf(m.Distance, 0) && m.AntennaPosition.IsFinite()
}

// Estimate is a solved position plus the anchors that produced it.
type Estimate struct {
	Position    geometry.Point3D `json:"position"`
	AnchorsUsed []string         `json:"anchors_used"`
	Residual    float64          `json:"residual"`
}

type Strategy string

const (
	StrategyFirstThree   Strategy = "first-three"
	StrategyLeastSquares Strategy = "least-squares"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyFirstThree, "":
		return StrategyFirstThree, nil
	case StrategyLeastSquares:
		return StrategyLeastSquares, nil
	default:
		return "", fmt.Errorf("unknown position strategy %q", s)
	}
}

// Estimator picks the solver used for live positions.
type Estimator struct {
	Strategy Strategy
}

func NewEstimator(strategy Strategy) *Estimator {
	return &Estimator{Strategy: strategy}
}

// Estimate solves measurements with the configured strategy. ok is false when there are
// fewer than three usable ranges or the anchors are collinear.
func (e *Estimator) Estimate(measurements []RangeMeasurement) (Estimate, bool) {
	if e.Strategy == StrategyLeastSquares {
		return Multilaterate(measurements)
	}

	usable := usableMeasurements(measurements)
	if len(usable) < MinimumAnchors {
		return Estimate{}, false
	}
	first := usable[:MinimumAnchors]

	p, ok := Trilaterate(first)
	if !ok {
		return Estimate{}, false
	}
	return Estimate{
		Position:    p,
		AnchorsUsed: anchorIDs(first),
		Residual:    rangeResidual(p, first),
	}, true
}

// Trilaterate solves the planar position from the first three usable ranges by
// subtracting consecutive circle equations and applying Cramer's rule. Z is the mean
// anchor height. Any further ranges are ignored.
func Trilaterate(measurements []RangeMeasurement) (geometry.Point3D, bool) {
	usable := usableMeasurements(measurements)
	if len(usable) < MinimumAnchors {
		return geometry.Point3D{}, false
	}

	p1, p2, p3 := usable[0].AntennaPosition, usable[1].AntennaPosition, usable[2].AntennaPosition
	d1, d2, d3 := usable[0].Distance, usable[1].Distance, usable[2].Distance

	a11 := 2 * (p2.X - p1.X)
	a12 := 2 * (p2.Y - p1.Y)
	a21 := 2 * (p3.X - p2.X)
	a22 := 2 * (p3.Y - p2.Y)

	b1 := d1*d1 - d2*d2 - planarNormSq(p1) + planarNormSq(p2)
	b2 := d2*d2 - d3*d3 - planarNormSq(p2) + planarNormSq(p3)

	det := a11*a22 - a12*a21
	if math.Abs(det) < determinantEpsilon {
		return geometry.Point3D{}, false
	}

	return geometry.Point3D{
		X: (b1*a22 - a12*b2) / det,
		Y: (a11*b2 - b1*a21) / det,
		Z: (p1.Z + p2.Z + p3.Z) / 3,
	}, true
}

// Multilaterate linearises every usable range against the first one and solves the
// overdetermined system by QR least squares. Residual is the RMS range error.
func Multilaterate(measurements []RangeMeasurement) (Estimate, bool) {
	usable := usableMeasurements(measurements)
	if len(usable) < MinimumAnchors {
		return Estimate{}, false
	}

	anchors := make([]geometry.Point3D, len(usable))
	for i, m := range usable {
		anchors[i] = m.AntennaPosition
	}
	if collinear(anchors) {
		return Estimate{}, false
	}

	ref := usable[0]
	rows := len(usable) - 1
	design := mat.NewDense(rows, 2, nil)
	rhs := mat.NewVecDense(rows, nil)
	for i, m := range usable[1:] {
		design.SetRow(i, []float64{
			2 * (m.AntennaPosition.X - ref.AntennaPosition.X),
			2 * (m.AntennaPosition.Y - ref.AntennaPosition.Y),
		})
		rhs.SetVec(i, ref.Distance*ref.Distance-m.Distance*m.Distance-
			planarNormSq(ref.AntennaPosition)+planarNormSq(m.AntennaPosition))
	}

	var qr mat.QR
	qr.Factorize(design)

	var solution mat.VecDense
	if err := qr.SolveVecTo(&solution, false, rhs); err != nil {
		return Estimate{}, false
	}

	p := geometry.Point3D{
		X: solution.AtVec(0),
		Y: solution.AtVec(1),
		Z: geometry.Centroid(anchors).Z,
	}
	if !p.IsFinite() {
		return Estimate{}, false
	}

	return Estimate{
		Position:    p,
		AnchorsUsed: anchorIDs(usable),
		Residual:    rangeResidual(p, usable),
	}, true
}

func usableMeasurements(measurements []RangeMeasurement) []RangeMeasurement {
	usable := make([]RangeMeasurement, 0, len(measurements))
	for _, m := range measurements {
		if m.usable() {
			usable = append(usable, m)
		}
	}
	return usable
}

func anchorIDs(measurements []RangeMeasurement) []string {
	ids := make([]string, len(measurements))
	for i, m := range measurements {
		ids[i] = m.AntennaID
	}
	return ids
}

func rangeResidual(p geometry.Point3D, measurements []RangeMeasurement) float64 {
	var sum float64
	for _, m := range measurements {
		diff := p.PlanarDistanceTo(m.AntennaPosition) - m.Distance
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(measurements)))
}

func planarNormSq(p geometry.Point3D) float64 {
	return p.X*p.X + p.Y*p.Y
}

// collinear reports whether every anchor lies on one line in the plane.
func collinear(anchors []geometry.Point3D) bool {
	origin := anchors[0]
	for i := 1; i < len(anchors); i++ {
		for j := i + 1; j < len(anchors); j++ {
			u := anchors[i].Sub(origin)
			v := anchors[j].Sub(origin)
			if math.Abs(u.X*v.Y-u.Y*v.X) >= determinantEpsilon {
				return false
			}
		}
	}
	return true
}
