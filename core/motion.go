package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	satellite "github.com/joshuaferrara/go-satellite"
)

// ErrInvalidTLE is returned when a two-line element set cannot be parsed.
var ErrInvalidTLE = errors.New("invalid two-line element set")

// Transform is the part of a scene node that motion models write to.
type Transform interface {
	SetPosition(p mgl64.Vec3)
	SetRotationY(angle float64)
}

// Orbit advances a body along its path once per frame and writes the
// resulting transform. Step and Place are separate so the caller can keep
// advancing a body whose node has not been loaded yet.
type Orbit interface {
	// Step advances the orbit by one frame.
	Step()
	// Place writes the current transform to t. A nil t is a no-op.
	Place(t Transform)
}

// DirectOrbit computes a position on a circle from its accumulated angle.
type DirectOrbit struct {
	Center mgl64.Vec3
	Radius float64
	Speed  float64

	angle float64
}

// NewDirectOrbit validates the radius and returns an orbit starting at
// angle zero.
func NewDirectOrbit(center mgl64.Vec3, radius, speed float64) (*DirectOrbit, error) {
	if err := ValidateRadius(radius); err != nil {
		return nil, fmt.Errorf("direct orbit: %w", err)
	}
	return &DirectOrbit{Center: center, Radius: radius, Speed: speed}, nil
}

// Angle returns the accumulated orbit angle in radians.
func (o *DirectOrbit) Angle() float64 { return o.angle }

// Position returns the point for the current angle.
func (o *DirectOrbit) Position() mgl64.Vec3 {
	return ComputePosition(o.Center, o.Radius, o.angle)
}

// Step implements Orbit.
func (o *DirectOrbit) Step() { o.angle = AdvanceAngle(o.angle, o.Speed) }

// Place implements Orbit.
func (o *DirectOrbit) Place(t Transform) {
	if t == nil {
		return
	}
	t.SetPosition(o.Position())
}

// rotation accumulates a Y angle and writes it absolutely, so the node never
// drifts from the angle that was counted.
type rotation struct {
	Speed float64
	angle float64
}

func (r *rotation) Angle() float64 { return r.angle }

func (r *rotation) Step() { r.angle += r.Speed }

func (r *rotation) Place(t Transform) {
	if t == nil {
		return
	}
	t.SetRotationY(r.angle)
}

// PivotOrbit carries a child around its parent by rotating an invisible
// pivot node. The child's offset from the pivot sets the orbit radius.
type PivotOrbit struct{ rotation }

// NewPivotOrbit returns a pivot orbit turning speed radians per frame.
func NewPivotOrbit(speed float64) *PivotOrbit {
	return &PivotOrbit{rotation{Speed: speed}}
}

// Spin is a body's rotation about its own Y axis.
type Spin struct{ rotation }

// NewSpin returns a self rotation of speed radians per frame.
func NewSpin(speed float64) *Spin {
	return &Spin{rotation{Speed: speed}}
}

// TLEOrbit places a body at its SGP4-propagated position. Simulation time
// advances by a fixed step per frame; go-satellite works in kilometres, which
// are multiplied by Scale to get scene units.
type TLEOrbit struct {
	sat     satellite.Satellite
	step    time.Duration
	scale   float64
	simTime time.Time
	pos     mgl64.Vec3
}

// NewTLEOrbit parses the element set and propagates it to start.
func NewTLEOrbit(line1, line2 string, start time.Time, step time.Duration, scale float64) (*TLEOrbit, error) {
	if err := ValidateTLE(line1, line2); err != nil {
		return nil, err
	}
	o := &TLEOrbit{
		sat:     satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		step:    step,
		scale:   scale,
		simTime: start.UTC(),
	}
	o.propagate()
	return o, nil
}

// SimTime returns the simulation time of the current position.
func (o *TLEOrbit) SimTime() time.Time { return o.simTime }

// Position returns the current position in scene units.
func (o *TLEOrbit) Position() mgl64.Vec3 { return o.pos }

// Step implements Orbit.
func (o *TLEOrbit) Step() {
	o.simTime = o.simTime.Add(o.step)
	o.propagate()
}

// Place implements Orbit.
func (o *TLEOrbit) Place(t Transform) {
	if t == nil {
		return
	}
	t.SetPosition(o.pos)
}

// propagate maps the ECI frame (z up) onto the scene frame (y up) so the
// equator lies in the same plane as the circular orbits.
func (o *TLEOrbit) propagate() {
	year, month, day := o.simTime.Date()
	hour, min, sec := o.simTime.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	o.pos = mgl64.Vec3{
		posECI.X * o.scale,
		posECI.Z * o.scale,
		-posECI.Y * o.scale,
	}
}

// tleField is one fixed-column numeric field, in the form go-satellite
// reads it.
type tleField struct {
	name  string
	line  int
	value func(line string) string
	isInt bool
}

func columns(lo, hi int) func(string) string {
	return func(l string) string { return strings.Replace(l[lo:hi], " ", "", 2) }
}

var tleFields = []tleField{
	{name: "satellite number", line: 1, value: func(l string) string { return strings.TrimSpace(l[2:7]) }, isInt: true},
	{name: "epoch year", line: 1, value: func(l string) string { return l[18:20] }, isInt: true},
	{name: "epoch day", line: 1, value: func(l string) string { return l[20:32] }},
	{name: "mean motion first derivative", line: 1, value: columns(33, 43)},
	{name: "mean motion second derivative", line: 1, value: func(l string) string {
		return strings.Replace(l[44:45]+"."+l[45:50]+"e"+l[50:52], " ", "", 2)
	}},
	{name: "bstar", line: 1, value: func(l string) string {
		return strings.Replace(l[53:54]+"."+l[54:59]+"e"+l[59:61], " ", "", 2)
	}},
	{name: "inclination", line: 2, value: columns(8, 16)},
	{name: "right ascension", line: 2, value: columns(17, 25)},
	{name: "eccentricity", line: 2, value: func(l string) string { return "." + l[26:33] }},
	{name: "argument of perigee", line: 2, value: columns(34, 42)},
	{name: "mean anomaly", line: 2, value: columns(43, 51)},
	{name: "mean motion", line: 2, value: columns(52, 63)},
}

// ValidateTLE rejects element sets go-satellite would fail to parse. Every
// numeric field is checked, because the parser exits the process on a bad
// one. Line checksums are not verified.
func ValidateTLE(line1, line2 string) error {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")
	if len(line1) < 69 || len(line2) < 69 {
		return fmt.Errorf("%w: lines must be 69 characters", ErrInvalidTLE)
	}
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("%w: unexpected line numbers", ErrInvalidTLE)
	}
	for _, f := range tleFields {
		l := line1
		if f.line == 2 {
			l = line2
		}
		raw := f.value(l)
		var err error
		if f.isInt {
			_, err = strconv.Atoi(raw)
		} else {
			_, err = strconv.ParseFloat(raw, 64)
		}
		if err != nil {
			return fmt.Errorf("%w: line %d %s %q", ErrInvalidTLE, f.line, f.name, raw)
		}
	}
	return nil
}
