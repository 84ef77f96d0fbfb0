// Package estimator fits local-to-world transforms from paired reference and measured
// positions.
package estimator

import (
	"fmt"
	"gonum.org/v1/gonum/mat"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/geometry"
	"math"
	"strings"
)

// MinimumPairs is the smallest number of point pairs any fit accepts.
const MinimumPairs = 3

// degenerateSpread is the smallest summed squared distance from the centroid that still
// counts as a spread of points.
const degenerateSpread = 1e-12

type Model string

const (
	ModelRigid      Model = "rigid"
	ModelSimilarity Model = "similarity"
	ModelAffine     Model = "affine"
)

func ParseModel(s string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case ModelRigid:
		return ModelRigid, nil
	case ModelSimilarity, "":
		return ModelSimilarity, nil
	case ModelAffine:
		return ModelAffine, nil
	default:
		return "", fmt.Errorf("unknown transform model %q", s)
	}
}

// PointPair pairs a known world position with the position an antenna measured for it.
type PointPair struct {
	Reference geometry.Point3D `json:"reference"`
	Measured  geometry.Point3D `json:"measured"`
}

// Fit dispatches to the estimator for model.
func Fit(model Model, pairs []PointPair) (geometry.AffineTransform, error) {
	switch model {
	case ModelRigid:
		return LeastSquaresRigid(pairs)
	case ModelSimilarity, "":
		return LeastSquares(pairs)
	case ModelAffine:
		return LeastSquaresAffine(pairs)
	default:
		return geometry.AffineTransform{}, fmt.Errorf("unknown transform model %q", model)
	}
}

// ExactAffine solves the affine transform through exactly three pairs. The measured
// points must not be collinear.
func ExactAffine(pairs []PointPair) (geometry.AffineTransform, error) {
	if len(pairs) != MinimumPairs {
		return geometry.AffineTransform{}, &calerr.InsufficientPointsError{Required: MinimumPairs, Provided: len(pairs)}
	}
	if err := validatePairs(pairs); err != nil {
		return geometry.AffineTransform{}, err
	}

	m := mat.NewDense(3, 3, nil)
	refX := mat.NewVecDense(3, nil)
	refY := mat.NewVecDense(3, nil)
	for i, p := range pairs {
		m.SetRow(i, []float64{p.Measured.X, p.Measured.Y, 1})
		refX.SetVec(i, p.Reference.X)
		refY.SetVec(i, p.Reference.Y)
	}

	var lu mat.LU
	lu.Factorize(m)
	if math.Abs(lu.Det()) <= geometry.SingularThreshold {
		return geometry.AffineTransform{}, calerr.ErrSingularConfiguration
	}

	var xCoeff, yCoeff mat.VecDense
	if err := lu.SolveVecTo(&xCoeff, false, refX); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %v", calerr.ErrSingularConfiguration, err)
	}
	if err := lu.SolveVecTo(&yCoeff, false, refY); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %v", calerr.ErrSingularConfiguration, err)
	}

	t := geometry.AffineTransform{
		A:          xCoeff.AtVec(0),
		C:          xCoeff.AtVec(1),
		Tx:         xCoeff.AtVec(2),
		B:          yCoeff.AtVec(0),
		D:          yCoeff.AtVec(1),
		Ty:         yCoeff.AtVec(2),
		ScaleZ:     1,
		TranslateZ: meanZOffset(pairs),
	}
	t.Accuracy = RMSE(t, pairs)
	return t, nil
}

// LeastSquares fits a similarity transform (rotation, uniform scale, translation) over
// N >= 3 pairs. Rotation is the closed-form angle minimising squared residuals of the
// centred point sets; scale is the ratio of RMS distances from the centroids.
func LeastSquares(pairs []PointPair) (geometry.AffineTransform, error) {
	return fitSimilarity(pairs, true)
}

// LeastSquaresRigid is LeastSquares with the scale fixed to 1.
func LeastSquaresRigid(pairs []PointPair) (geometry.AffineTransform, error) {
	return fitSimilarity(pairs, false)
}

func fitSimilarity(pairs []PointPair, withScale bool) (geometry.AffineTransform, error) {
	if len(pairs) < MinimumPairs {
		return geometry.AffineTransform{}, &calerr.InsufficientPointsError{Required: MinimumPairs, Provided: len(pairs)}
	}
	if err := validatePairs(pairs); err != nil {
		return geometry.AffineTransform{}, err
	}

	measuredCentroid, referenceCentroid := centroids(pairs)

	var dot, cross, measuredSpread, referenceSpread float64
	for _, p := range pairs {
		mx, my := p.Measured.X-measuredCentroid.X, p.Measured.Y-measuredCentroid.Y
		rx, ry := p.Reference.X-referenceCentroid.X, p.Reference.Y-referenceCentroid.Y

		dot += mx*rx + my*ry
		cross += mx*ry - my*rx
		measuredSpread += mx*mx + my*my
		referenceSpread += rx*rx + ry*ry
	}

	if measuredSpread <= degenerateSpread {
		return geometry.AffineTransform{}, fmt.Errorf("%w: measured points coincide", calerr.ErrDegenerateGeometry)
	}

	scale := 1.0
	if withScale {
		if referenceSpread <= degenerateSpread {
			return geometry.AffineTransform{}, fmt.Errorf("%w: reference points coincide", calerr.ErrDegenerateGeometry)
		}
		scale = math.Sqrt(referenceSpread / measuredSpread)
	}

	theta := math.Atan2(cross, dot)
	t := geometry.FromRotation(theta, scale, geometry.Point3D{})

	rotated := t.Apply(geometry.Point3D{X: measuredCentroid.X, Y: measuredCentroid.Y})
	t.Tx = referenceCentroid.X - rotated.X
	t.Ty = referenceCentroid.Y - rotated.Y
	t.TranslateZ = meanZOffset(pairs)
	t.Accuracy = RMSE(t, pairs)
	return t, nil
}

// LeastSquaresAffine fits all six planar coefficients by QR least squares. Collinear
// measured sets are rejected because the shear is undetermined. Exactly three pairs are
// solved directly by ExactAffine.
func LeastSquaresAffine(pairs []PointPair) (geometry.AffineTransform, error) {
	if len(pairs) < MinimumPairs {
		return geometry.AffineTransform{}, &calerr.InsufficientPointsError{Required: MinimumPairs, Provided: len(pairs)}
	}
	if len(pairs) == MinimumPairs {
		return ExactAffine(pairs)
	}
	if err := validatePairs(pairs); err != nil {
		return geometry.AffineTransform{}, err
	}
	if collinear(pairs) {
		return geometry.AffineTransform{}, fmt.Errorf("%w: measured points are collinear", calerr.ErrDegenerateGeometry)
	}

	n := len(pairs)
	design := mat.NewDense(n, 3, nil)
	refX := mat.NewVecDense(n, nil)
	refY := mat.NewVecDense(n, nil)
	for i, p := range pairs {
		design.SetRow(i, []float64{p.Measured.X, p.Measured.Y, 1})
		refX.SetVec(i, p.Reference.X)
		refY.SetVec(i, p.Reference.Y)
	}

	var qr mat.QR
	qr.Factorize(design)

	var xCoeff, yCoeff mat.VecDense
	if err := qr.SolveVecTo(&xCoeff, false, refX); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %v", calerr.ErrDegenerateGeometry, err)
	}
	if err := qr.SolveVecTo(&yCoeff, false, refY); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %v", calerr.ErrDegenerateGeometry, err)
	}

	t := geometry.AffineTransform{
		A:          xCoeff.AtVec(0),
		C:          xCoeff.AtVec(1),
		Tx:         xCoeff.AtVec(2),
		B:          yCoeff.AtVec(0),
		D:          yCoeff.AtVec(1),
		Ty:         yCoeff.AtVec(2),
		ScaleZ:     1,
		TranslateZ: meanZOffset(pairs),
	}
	if !t.IsValid() {
		return geometry.AffineTransform{}, calerr.ErrSingularConfiguration
	}
	t.Accuracy = RMSE(t, pairs)
	return t, nil
}

// RMSE is the root-mean-square 3D residual of t applied to every measured point.
func RMSE(t geometry.AffineTransform, pairs []PointPair) float64 {
	if len(pairs) == 0 {
		return 0
	}

	var sum float64
	for _, p := range pairs {
		d := t.Apply(p.Measured).DistanceTo(p.Reference)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pairs)))
}

func validatePairs(pairs []PointPair) error {
	for i, p := range pairs {
		if !p.Reference.IsFinite() {
			return calerr.InvalidData(calerr.ErrNonFiniteCoordinate, "pair %d: reference %v is not finite", i, p.Reference)
		}
		if !p.Measured.IsFinite() {
			return calerr.InvalidData(calerr.ErrNonFiniteCoordinate, "pair %d: measured %v is not finite", i, p.Measured)
		}
	}
	return nil
}

func centroids(pairs []PointPair) (measured, reference geometry.Point3D) {
	ms := make([]geometry.Point3D, len(pairs))
	rs := make([]geometry.Point3D, len(pairs))
	for i, p := range pairs {
		ms[i] = p.Measured
		rs[i] = p.Reference
	}
	return geometry.Centroid(ms), geometry.Centroid(rs)
}

func meanZOffset(pairs []PointPair) float64 {
	var sum float64
	for _, p := range pairs {
		sum += p.Reference.Z - p.Measured.Z
	}
	return sum / float64(len(pairs))
}

// collinear checks the planar covariance of the measured points relative to its trace.
func collinear(pairs []PointPair) bool {
	c, _ := centroids(pairs)

	var sxx, syy, sxy float64
	for _, p := range pairs {
		dx, dy := p.Measured.X-c.X, p.Measured.Y-c.Y
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	trace := sxx + syy
	if trace <= degenerateSpread {
		return true
	}
	return (sxx*syy-sxy*sxy)/(trace*trace) <= 1e-12
}
