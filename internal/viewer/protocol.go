package viewer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orbit-scene/internal/sim"
	"github.com/signalsfoundry/orbit-scene/scene"
)

// Message types on the wire.
const (
	TypeHello   = "hello"
	TypeFrame   = "frame"
	TypeResize  = "resize"
	TypePointer = "pointer"
	TypeOrbit   = "orbit"
	TypeZoom    = "zoom"
)

// Viewport is the render target size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HelloMessage is sent once when a viewer connects.
type HelloMessage struct {
	Type     string   `json:"type"`
	Session  string   `json:"session"`
	Viewport Viewport `json:"viewport"`
}

// CameraState is the camera as sent to viewers. Fov is vertical, in degrees.
type CameraState struct {
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
	Up       [3]float64 `json:"up"`
	Fov      float64    `json:"fov"`
	Aspect   float64    `json:"aspect"`
	Near     float64    `json:"near"`
	Far      float64    `json:"far"`
}

// SphereState describes sphere geometry.
type SphereState struct {
	Radius         float64 `json:"radius"`
	WidthSegments  int     `json:"width_segments"`
	HeightSegments int     `json:"height_segments"`
}

// MaterialState describes a mesh material.
type MaterialState struct {
	Kind    string `json:"kind"`
	Texture string `json:"texture,omitempty"`
	Color   string `json:"color,omitempty"`
}

// LightState describes a light.
type LightState struct {
	Kind      string  `json:"kind"`
	Color     string  `json:"color"`
	Intensity float64 `json:"intensity"`
	Distance  float64 `json:"distance,omitempty"`
}

// NodeState is one scene node with its local transform. Orientation is a
// quaternion in x, y, z, w order.
type NodeState struct {
	ID          string         `json:"id"`
	Parent      string         `json:"parent"`
	Kind        string         `json:"kind"`
	Name        string         `json:"name,omitempty"`
	Position    [3]float64     `json:"position"`
	RotationY   float64        `json:"rotation_y"`
	Orientation [4]float64     `json:"orientation"`
	Scale       [3]float64     `json:"scale"`
	Sphere      *SphereState   `json:"sphere,omitempty"`
	Material    *MaterialState `json:"material,omitempty"`
	Light       *LightState    `json:"light,omitempty"`
}

// FrameMessage is the per-tick scene snapshot. Nodes are listed parents
// first, so viewers can build the tree in one pass.
type FrameMessage struct {
	Type       string      `json:"type"`
	Frame      uint64      `json:"frame"`
	Camera     CameraState `json:"camera"`
	Viewport   Viewport    `json:"viewport"`
	Background [6]string   `json:"background"`
	Nodes      []NodeState `json:"nodes"`
}

// ClientMessage is any message a viewer sends. Fields not used by Type are
// ignored.
type ClientMessage struct {
	Type   string  `json:"type"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
}

// Input converts the message to a simulation input.
func (m ClientMessage) Input() (sim.Input, error) {
	switch m.Type {
	case TypeResize:
		return sim.Input{Kind: sim.InputResize, Width: m.Width, Height: m.Height}, nil
	case TypePointer:
		return sim.Input{Kind: sim.InputPointer, X: m.X, Y: m.Y}, nil
	case TypeOrbit:
		return sim.Input{Kind: sim.InputOrbit, DX: m.DX, DY: m.DY}, nil
	case TypeZoom:
		return sim.Input{Kind: sim.InputZoom, Scale: m.Scale}, nil
	default:
		return sim.Input{}, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// Snapshot captures a frame for the wire. It must run on the frame goroutine.
func Snapshot(f sim.Frame) FrameMessage {
	msg := FrameMessage{
		Type:     TypeFrame,
		Frame:    f.Number,
		Viewport: Viewport{Width: f.Width, Height: f.Height},
	}
	if c := f.Camera; c != nil {
		msg.Camera = CameraState{
			Position: vec(c.Position),
			Target:   vec(c.Target),
			Up:       vec(c.Up),
			Fov:      c.FovY,
			Aspect:   c.Aspect,
			Near:     c.Near,
			Far:      c.Far,
		}
	}
	if f.Graph == nil {
		return msg
	}
	msg.Background = f.Graph.Background().Faces
	f.Graph.Walk(func(n *scene.Node, depth int) {
		if depth == 0 {
			return
		}
		msg.Nodes = append(msg.Nodes, nodeState(n))
	})
	return msg
}

func nodeState(n *scene.Node) NodeState {
	s := NodeState{
		ID:          n.ID,
		Kind:        n.Kind.String(),
		Position:    vec(n.Position),
		RotationY:   n.RotationY,
		Orientation: [4]float64{n.Orientation.V[0], n.Orientation.V[1], n.Orientation.V[2], n.Orientation.W},
		Scale:       vec(n.Scale),
	}
	if n.Name != n.ID {
		s.Name = n.Name
	}
	if p := n.Parent(); p != nil {
		s.Parent = p.ID
	}
	if n.Sphere != nil {
		s.Sphere = &SphereState{
			Radius:         n.Sphere.Radius,
			WidthSegments:  n.Sphere.WidthSegments,
			HeightSegments: n.Sphere.HeightSegments,
		}
	}
	if n.Material != nil {
		s.Material = &MaterialState{Kind: string(n.Material.Kind), Texture: n.Material.Texture}
		if n.Material.Color != 0 {
			s.Material.Color = hexColor(n.Material.Color)
		}
	}
	if n.Light != nil {
		s.Light = &LightState{
			Kind:      string(n.Light.Kind),
			Color:     hexColor(n.Light.Color),
			Intensity: n.Light.Intensity,
			Distance:  n.Light.Distance,
		}
	}
	return s
}

func vec(v mgl64.Vec3) [3]float64 { return [3]float64{v[0], v[1], v[2]} }

func hexColor(c uint32) string { return fmt.Sprintf("#%06x", c&0xFFFFFF) }
