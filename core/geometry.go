package core

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// EarthRadiusKm is the mean Earth radius used to scale propagated orbits
// into scene units (kilometres).
const EarthRadiusKm = 6371.0

// ErrNegativeRadius is returned when an orbit is configured with a radius
// below zero.
var ErrNegativeRadius = errors.New("orbit radius must not be negative")

// ComputePosition returns the point at angle on the horizontal circle of the
// given radius around center. The orbit is planar: y is taken from center.
func ComputePosition(center mgl64.Vec3, radius, angle float64) mgl64.Vec3 {
	return mgl64.Vec3{
		center.X() + radius*math.Cos(angle),
		center.Y(),
		center.Z() + radius*math.Sin(angle),
	}
}

// AdvanceAngle moves an orbit angle forward by one frame. Subtracting the
// speed makes positive speeds run clockwise when viewed from above.
func AdvanceAngle(current, speed float64) float64 {
	return current - speed
}

// OrbitDeviation returns how far p lies from the orbit circle, measured in
// the horizontal plane. Zero means p is exactly on the circle.
func OrbitDeviation(center mgl64.Vec3, radius float64, p mgl64.Vec3) float64 {
	dx := p.X() - center.X()
	dz := p.Z() - center.Z()
	return math.Abs(math.Hypot(dx, dz) - radius)
}

// ValidateRadius rejects radii that cannot describe an orbit.
func ValidateRadius(radius float64) error {
	if radius < 0 || math.IsNaN(radius) {
		return ErrNegativeRadius
	}
	return nil
}
