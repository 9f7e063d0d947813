package model

import "github.com/go-gl/mathgl/mgl64"

// CameraDefinition describes the perspective camera and its orbit controls.
type CameraDefinition struct {
	FovY     float64 // degrees
	Near     float64
	Far      float64
	Position mgl64.Vec3
	Target   mgl64.Vec3

	MinDistance float64
	MaxDistance float64 // 0 means unbounded
}

// SceneDefinition is everything needed to compose the scene at startup.
// Bodies are composed in order, and that order is also the per-frame update
// order.
type SceneDefinition struct {
	// Skybox is the texture used for all six cube faces.
	Skybox string

	Width  int
	Height int

	Camera CameraDefinition
	Lights []LightDefinition
	Bodies []BodyDefinition
}

// Aspect returns Width/Height, or 1 for a degenerate viewport.
func (d SceneDefinition) Aspect() float64 {
	if d.Width <= 0 || d.Height <= 0 {
		return 1
	}
	return float64(d.Width) / float64(d.Height)
}
