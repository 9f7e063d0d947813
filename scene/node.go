package scene

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Kind classifies what a node renders as.
type Kind int

const (
	KindGroup Kind = iota // transform-only node, e.g. an orbit pivot
	KindMesh              // sphere mesh with a material
	KindLight             // ambient or point light
	KindModel             // root of a loaded model
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// MaterialKind selects the shading model for a mesh.
type MaterialKind string

const (
	MaterialBasic    MaterialKind = "basic"    // unlit
	MaterialStandard MaterialKind = "standard" // lit
)

// Material describes how a mesh surface is drawn.
type Material struct {
	Kind    MaterialKind
	Texture string
	Color   uint32
}

// Sphere is the only built-in geometry.
type Sphere struct {
	Radius         float64
	WidthSegments  int
	HeightSegments int
}

// LightKind selects the light model.
type LightKind string

const (
	LightAmbient LightKind = "ambient"
	LightPoint   LightKind = "point"
)

// Light is a light source attached to a node.
type Light struct {
	Kind      LightKind
	Color     uint32
	Intensity float64
	Distance  float64 // 0 means unlimited range
}

// Node is a single element of the scene tree. Its world transform is its
// local transform composed with its parent's.
//
// Transforms are written by the frame goroutine only; the tree structure is
// guarded by the owning Graph.
type Node struct {
	ID   string
	Name string
	Kind Kind

	Position  mgl64.Vec3
	RotationY float64
	// Orientation is an extra fixed rotation applied before RotationY,
	// used for loaded model parts.
	Orientation mgl64.Quat
	Scale       mgl64.Vec3

	Sphere   *Sphere
	Material *Material
	Light    *Light

	parent   *Node
	children []*Node
}

func newNode(id string, kind Kind) *Node {
	return &Node{
		ID:          id,
		Name:        id,
		Kind:        kind,
		Orientation: mgl64.QuatIdent(),
		Scale:       mgl64.Vec3{1, 1, 1},
	}
}

// NewGroup returns an empty transform node.
func NewGroup(id string) *Node { return newNode(id, KindGroup) }

// NewModel returns the root node for a loaded model.
func NewModel(id string) *Node { return newNode(id, KindModel) }

// NewSphere returns a sphere mesh node.
func NewSphere(id string, sphere Sphere, mat Material) *Node {
	n := newNode(id, KindMesh)
	n.Sphere = &sphere
	n.Material = &mat
	return n
}

// NewLight returns a light node.
func NewLight(id string, light Light) *Node {
	n := newNode(id, KindLight)
	n.Light = &light
	return n
}

// SetPosition sets the local position. It is a no-op on a nil node so
// bodies that have not loaded yet can be written to safely.
func (n *Node) SetPosition(p mgl64.Vec3) {
	if n == nil {
		return
	}
	n.Position = p
}

// SetRotationY sets the local rotation about the Y axis in radians.
func (n *Node) SetRotationY(angle float64) {
	if n == nil {
		return
	}
	n.RotationY = angle
}

// SetScale applies a uniform scale.
func (n *Node) SetScale(s float64) {
	if n == nil {
		return
	}
	n.Scale = mgl64.Vec3{s, s, s}
}

// Add appends child to n. The child must not already have a parent. Use
// Graph.Add for nodes that are already part of a graph.
func (n *Node) Add(child *Node) error {
	if child.parent != nil || child == n {
		return ErrAlreadyAttached
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// Parent returns the parent node or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// LocalMatrix returns T * Ry * Q * S.
func (n *Node) LocalMatrix() mgl64.Mat4 {
	t := mgl64.Translate3D(n.Position.X(), n.Position.Y(), n.Position.Z())
	r := mgl64.HomogRotate3DY(n.RotationY)
	q := n.Orientation.Mat4()
	s := mgl64.Scale3D(n.Scale.X(), n.Scale.Y(), n.Scale.Z())
	return t.Mul4(r).Mul4(q).Mul4(s)
}

// WorldMatrix composes the local matrices from the root down to n.
func (n *Node) WorldMatrix() mgl64.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// WorldPosition returns the node's origin in world coordinates.
func (n *Node) WorldPosition() mgl64.Vec3 {
	return n.WorldMatrix().Col(3).Vec3()
}

func (n *Node) walk(depth int, fn func(*Node, int)) {
	fn(n, depth)
	for _, c := range n.children {
		c.walk(depth+1, fn)
	}
}
