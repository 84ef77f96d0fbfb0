package geometry

import (
	"math"
	"time"
)

// SingularThreshold is the smallest |det| accepted for the planar part of a transform.
const SingularThreshold = 1e-10

// AffineTransform maps a local antenna frame into the world frame:
//
//	x' = A*x + C*y + Tx
//	y' = B*x + D*y + Ty
//	z' = ScaleZ*z + TranslateZ
//
// For a rotation by θ with uniform scale s, A = s·cosθ, B = s·sinθ, C = -s·sinθ, D = s·cosθ.
type AffineTransform struct {
	A          float64   `json:"a"`
	B          float64   `json:"b"`
	C          float64   `json:"c"`
	D          float64   `json:"d"`
	Tx         float64   `json:"tx"`
	Ty         float64   `json:"ty"`
	ScaleZ     float64   `json:"scale_z"`
	TranslateZ float64   `json:"translate_z"`
	Accuracy   float64   `json:"accuracy"`
	Timestamp  time.Time `json:"timestamp"`
}

func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1, ScaleZ: 1}
}

// FromRotation builds a rotation by theta radians, uniform planar scale and translation.
func FromRotation(theta, scale float64, translation Point3D) AffineTransform {
	cos, sin := math.Cos(theta), math.Sin(theta)
	return AffineTransform{
		A:          scale * cos,
		B:          scale * sin,
		C:          -scale * sin,
		D:          scale * cos,
		Tx:         translation.X,
		Ty:         translation.Y,
		ScaleZ:     1,
		TranslateZ: translation.Z,
	}
}

func (t AffineTransform) Determinant() float64 {
	return t.A*t.D - t.B*t.C
}

// IsValid reports whether the transform can be applied. An invalid transform must be
// treated exactly like an uncalibrated antenna.
func (t AffineTransform) IsValid() bool {
	for _, v := range []float64{t.A, t.B, t.C, t.D, t.Tx, t.Ty, t.ScaleZ, t.TranslateZ, t.Accuracy} {
		if !isFinite(v) {
			return false
		}
	}
	return math.Abs(t.Determinant()) > SingularThreshold
}

func (t AffineTransform) Apply(p Point3D) Point3D {
	return Point3D{
		X: t.A*p.X + t.C*p.Y + t.Tx,
		Y: t.B*p.X + t.D*p.Y + t.Ty,
		Z: t.ScaleZ*p.Z + t.TranslateZ,
	}
}

// Inverse returns the world-to-local mapping. ok is false for singular transforms.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.Determinant()
	if math.Abs(det) <= SingularThreshold || t.ScaleZ == 0 {
		return AffineTransform{}, false
	}

	inv := AffineTransform{
		A:          t.D / det,
		B:          -t.B / det,
		C:          -t.C / det,
		D:          t.A / det,
		ScaleZ:     1 / t.ScaleZ,
		TranslateZ: -t.TranslateZ / t.ScaleZ,
		Accuracy:   t.Accuracy,
		Timestamp:  t.Timestamp,
	}
	inv.Tx = -(inv.A*t.Tx + inv.C*t.Ty)
	inv.Ty = -(inv.B*t.Tx + inv.D*t.Ty)
	return inv, true
}

// Translation is the image of the local origin, i.e. the antenna's world position.
func (t AffineTransform) Translation() Point3D {
	return Point3D{X: t.Tx, Y: t.Ty, Z: t.TranslateZ}
}

// Heading is the rotation of the local frame in radians, atan2(B, A).
func (t AffineTransform) Heading() float64 {
	return math.Atan2(t.B, t.A)
}

func (t AffineTransform) HeadingDegrees() float64 {
	deg := math.Mod(t.Heading()*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// PlanarScale is sqrt(|det|), the uniform scale of a similarity transform.
func (t AffineTransform) PlanarScale() float64 {
	return math.Sqrt(math.Abs(t.Determinant()))
}

// ApproxEqual compares the mapping coefficients, ignoring Accuracy and Timestamp.
func (t AffineTransform) ApproxEqual(o AffineTransform, tolerance float64) bool {
	pairs := [][2]float64{
		{t.A, o.A}, {t.B, o.B}, {t.C, o.C}, {t.D, o.D},
		{t.Tx, o.Tx}, {t.Ty, o.Ty}, {t.ScaleZ, o.ScaleZ}, {t.TranslateZ, o.TranslateZ},
	}
	for _, p := range pairs {
		if math.Abs(p[0]-p[1]) > tolerance {
			return false
		}
	}
	return true
}
