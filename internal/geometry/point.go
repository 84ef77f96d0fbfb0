package geometry

import (
	"fmt"
	"github.com/golang/geo/r3"
	"math"
)

// Point3D is an immutable position in metres. Arithmetic delegates to r3.Vector.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func NewPoint(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

func FromVector(v r3.Vector) Point3D {
	return Point3D{X: v.X, Y: v.Y, Z: v.Z}
}

func (p Point3D) Vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

func (p Point3D) Add(o Point3D) Point3D {
	return FromVector(p.Vector().Add(o.Vector()))
}

func (p Point3D) Sub(o Point3D) Point3D {
	return FromVector(p.Vector().Sub(o.Vector()))
}

func (p Point3D) Scale(k float64) Point3D {
	return FromVector(p.Vector().Mul(k))
}

func (p Point3D) Dot(o Point3D) float64 {
	return p.Vector().Dot(o.Vector())
}

func (p Point3D) Magnitude() float64 {
	return p.Vector().Norm()
}

// Normalize returns the unit vector of p, or the zero vector when p has no length.
func (p Point3D) Normalize() Point3D {
	if p.Vector().Norm2() == 0 {
		return Point3D{}
	}
	return FromVector(p.Vector().Normalize())
}

func (p Point3D) DistanceTo(o Point3D) float64 {
	return p.Vector().Distance(o.Vector())
}

func (p Point3D) PlanarDistanceTo(o Point3D) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func (p Point3D) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func (p Point3D) ApproxEqual(o Point3D, tolerance float64) bool {
	return math.Abs(p.X-o.X) <= tolerance &&
		math.Abs(p.Y-o.Y) <= tolerance &&
		math.Abs(p.Z-o.Z) <= tolerance
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

func Distance(a, b Point3D) float64 {
	return a.DistanceTo(b)
}

// Centroid returns the mean of points, or the origin for an empty slice.
func Centroid(points []Point3D) Point3D {
	if len(points) == 0 {
		return Point3D{}
	}

	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p.Vector())
	}
	return FromVector(sum.Mul(1 / float64(len(points))))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
