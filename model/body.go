package model

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrUnknownOrbit indicates an orbit kind that is not supported.
var ErrUnknownOrbit = errors.New("unknown orbit kind")

// OrbitKind indicates how a body moves around the scene.
type OrbitKind int

const (
	OrbitNone   OrbitKind = iota // stationary
	OrbitDirect                  // position computed from an angle on a circle
	OrbitPivot                   // carried by rotating an invisible parent
	OrbitTLE                     // SGP4 propagation of a two-line element set
)

func (k OrbitKind) String() string {
	switch k {
	case OrbitNone:
		return "none"
	case OrbitDirect:
		return "direct"
	case OrbitPivot:
		return "pivot"
	case OrbitTLE:
		return "tle"
	default:
		return "unknown"
	}
}

// ParseOrbitKind maps a config string to an OrbitKind.
func ParseOrbitKind(s string) (OrbitKind, bool) {
	switch s {
	case "", "none":
		return OrbitNone, true
	case "direct":
		return OrbitDirect, true
	case "pivot":
		return OrbitPivot, true
	case "tle":
		return OrbitTLE, true
	default:
		return OrbitNone, false
	}
}

// OrbitDefinition describes a body's path.
type OrbitDefinition struct {
	Kind   OrbitKind
	Center mgl64.Vec3
	Radius float64 // direct: circle radius; pivot: child offset along +x
	Speed  float64 // radians per frame

	// TLE orbits only.
	TLE1        string
	TLE2        string
	StepSeconds float64   // simulation seconds per frame
	KmToScene   float64   // scene units per kilometre
	Epoch       time.Time // simulation start; zero means wall-clock now
}

// LightDefinition describes a light in config terms.
type LightDefinition struct {
	Kind      string // "ambient" or "point"
	Color     uint32
	Intensity float64
	Distance  float64
	Position  mgl64.Vec3
}

// BodyDefinition describes one body of the scene. Bodies without a Source are
// built-in spheres; bodies with a Source are loaded asynchronously.
type BodyDefinition struct {
	ID   string
	Name string

	// Built-in sphere.
	Radius   float64
	Texture  string
	Material string // "basic" or "standard"
	Color    uint32

	// Loaded model.
	Source          string
	Scale           float64
	InitialPosition mgl64.Vec3
	// Lights are attached to the model and move with it.
	Lights []LightDefinition
	// SceneLights are added to the scene root when the model loads.
	SceneLights []LightDefinition

	Spin  float64 // self rotation, radians per frame
	Orbit OrbitDefinition
}

// Loaded reports whether the body comes from an external asset.
func (b BodyDefinition) Loaded() bool { return b.Source != "" }
