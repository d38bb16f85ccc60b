package angles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LandmarkCount is the number of hand landmarks a full detection produces
const LandmarkCount = 21

// Point3 is a landmark position. Z may be zero for 2-D detections.
type Point3 [3]float64

// jointTriplets maps each joint to the (proximal, vertex, distal) landmark
// indices whose angle at the vertex gives the joint flexion.
var jointTriplets = [Dims][3]int{
	{1, 2, 3},    // thumb
	{5, 6, 7},    // index
	{9, 10, 11},  // middle
	{13, 14, 15}, // ring
	{17, 18, 19}, // pinky
}

// JointAngle returns the angle at b between BA and BC, in degrees.
// A zero-length BA or BC yields 0 instead of an error.
func JointAngle(a, b, c Point3) float64 {
	ba := []float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
	bc := []float64{c[0] - b[0], c[1] - b[1], c[2] - b[2]}

	denom := floats.Norm(ba, 2) * floats.Norm(bc, 2)
	if denom == 0 {
		return 0
	}

	cosine := Clamp(floats.Dot(ba, bc)/denom, -1, 1)
	return math.Acos(cosine) * 180 / math.Pi
}

// FromLandmarks derives a Vector from a full set of hand landmarks
func FromLandmarks(lm []Point3) (Vector, error) {
	var v Vector
	if len(lm) < LandmarkCount {
		return v, fmt.Errorf("need %d landmarks, got %d", LandmarkCount, len(lm))
	}

	for k, t := range jointTriplets {
		v[k] = JointAngle(lm[t[0]], lm[t[1]], lm[t[2]])
	}
	return v, nil
}
