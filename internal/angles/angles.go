// Package angles defines the finger-joint angle vector shared by every stage
// of the scoring pipeline.
package angles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Dims is the number of joints in a Vector.
const Dims = 5

// MaxAngle is the largest angle an arccosine-derived joint angle can take.
const MaxAngle = 180.0

// Joint indexes into a Vector
type Joint int

const (
	Thumb Joint = iota
	Index
	Middle
	Ring
	Pinky
)

// JointNames lists the joints in Vector order
var JointNames = [Dims]string{"thumb", "index", "middle", "ring", "pinky"}

// String returns the lowercase joint name
func (j Joint) String() string {
	if j < 0 || int(j) >= Dims {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return JointNames[j]
}

// Vector holds one joint angle per finger, in degrees, ordered thumb to pinky.
// It is a value type: once produced it is never mutated in place.
type Vector [Dims]float64

// Uniform returns a Vector with every joint set to v
func Uniform(v float64) Vector {
	var out Vector
	for k := range out {
		out[k] = v
	}
	return out
}

// FromSlice converts a 5-element slice into a Vector
func FromSlice(s []float64) (Vector, error) {
	var v Vector
	if len(s) != Dims {
		return v, fmt.Errorf("angle vector needs %d values, got %d", Dims, len(s))
	}
	copy(v[:], s)
	return v, nil
}

// Slice returns a fresh slice copy of the vector
func (v Vector) Slice() []float64 {
	out := make([]float64, Dims)
	copy(out, v[:])
	return out
}

// Valid reports whether every component is finite
func (v Vector) Valid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Add returns v + w elementwise
func (v Vector) Add(w Vector) Vector {
	out := v
	floats.Add(out[:], w[:])
	return out
}

// Sub returns v - w elementwise
func (v Vector) Sub(w Vector) Vector {
	out := v
	floats.Sub(out[:], w[:])
	return out
}

// Scale returns c * v
func (v Vector) Scale(c float64) Vector {
	out := v
	floats.Scale(c, out[:])
	return out
}

// AbsDiff returns |v - w| elementwise
func (v Vector) AbsDiff(w Vector) Vector {
	out := v.Sub(w)
	for k := range out {
		out[k] = math.Abs(out[k])
	}
	return out
}

// Max returns the largest component
func (v Vector) Max() float64 {
	return floats.Max(v[:])
}

// Mean returns the arithmetic mean of the components
func (v Vector) Mean() float64 {
	return floats.Sum(v[:]) / Dims
}

// Clamp clamps a value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
