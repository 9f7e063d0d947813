package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestAttachAndGet(t *testing.T) {
	g := NewGraph()
	earth := NewSphere("earth", Sphere{Radius: 16, WidthSegments: 30, HeightSegments: 30}, Material{Kind: MaterialBasic, Texture: "earth.jpg"})
	if err := g.Attach(earth); err != nil {
		t.Fatalf("Attach error: %v", err)
	}
	if got := g.Get("earth"); got != earth {
		t.Fatalf("Get(earth) = %p, want %p", got, earth)
	}
	if earth.Parent() != g.Root() {
		t.Fatalf("earth parent = %v, want root", earth.Parent())
	}
	if got := g.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
}

func TestAttachTwiceIsRejected(t *testing.T) {
	g := NewGraph()
	model := NewModel("shuttle")
	if err := g.Attach(model); err != nil {
		t.Fatalf("first Attach error: %v", err)
	}
	if err := g.Attach(model); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("second Attach error = %v, want ErrAlreadyAttached", err)
	}
	if n := len(g.Root().Children()); n != 1 {
		t.Fatalf("root has %d children, want 1", n)
	}
}

func TestAddRejectsDuplicateIDsAtomically(t *testing.T) {
	g := NewGraph()
	if err := g.Attach(NewGroup("light")); err != nil {
		t.Fatalf("Attach error: %v", err)
	}

	model := NewModel("satellite")
	if err := model.Add(NewGroup("satellite/0")); err != nil {
		t.Fatalf("Add child: %v", err)
	}
	if err := model.Add(NewGroup("light")); err != nil {
		t.Fatalf("Add child: %v", err)
	}

	if err := g.Attach(model); !errors.Is(err, ErrNodeExists) {
		t.Fatalf("Attach error = %v, want ErrNodeExists", err)
	}
	if g.Contains("satellite") || g.Contains("satellite/0") {
		t.Fatalf("failed attach left nodes in the graph")
	}
	if model.Parent() != nil {
		t.Fatalf("failed attach set a parent")
	}
}

func TestAddUnknownParent(t *testing.T) {
	g := NewGraph()
	if err := g.Add("missing", NewGroup("x")); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("Add error = %v, want ErrNodeNotFound", err)
	}
}

func TestSubscribeReceivesAttachEvents(t *testing.T) {
	g := NewGraph()
	var events []Event
	unsubscribe := g.Subscribe(func(e Event) { events = append(events, e) })

	model := NewModel("shuttle")
	_ = model.Add(NewLight("shuttle/light-0", Light{Kind: LightPoint, Color: 0xffffff, Intensity: 2}))
	if err := g.Attach(model); err != nil {
		t.Fatalf("Attach error: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Type != EventNodeAttached || e.NodeID != "shuttle" || e.ParentID != RootID || e.Nodes != 2 {
		t.Fatalf("unexpected event %+v", e)
	}

	unsubscribe()
	if err := g.Attach(NewGroup("other")); err != nil {
		t.Fatalf("Attach error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestWalkVisitsParentsFirst(t *testing.T) {
	g := NewGraph()
	pivot := NewGroup("lunar-pivot")
	moon := NewSphere("lunar", Sphere{Radius: 2.8}, Material{Kind: MaterialStandard})
	_ = pivot.Add(moon)
	if err := g.Attach(pivot); err != nil {
		t.Fatalf("Attach error: %v", err)
	}

	var order []string
	var depths []int
	g.Walk(func(n *Node, depth int) {
		order = append(order, n.ID)
		depths = append(depths, depth)
	})
	want := []string{RootID, "lunar-pivot", "lunar"}
	for i := range want {
		if order[i] != want[i] || depths[i] != i {
			t.Fatalf("walk order = %v depths = %v, want %v", order, depths, want)
		}
	}
}

func TestPivotCarriesChildAroundCenter(t *testing.T) {
	pivot := NewGroup("pivot")
	moon := NewSphere("moon", Sphere{Radius: 2.8}, Material{})
	moon.SetPosition(mgl64.Vec3{50, 0, 0})
	_ = pivot.Add(moon)

	for _, theta := range []float64{0, 0.3, math.Pi / 2, 2.5, -1} {
		pivot.SetRotationY(theta)
		got := moon.WorldPosition()
		want := mgl64.Vec3{50 * math.Cos(theta), 0, -50 * math.Sin(theta)}
		if !got.ApproxEqualThreshold(want, 1e-9) {
			t.Fatalf("theta=%v: moon at %v, want %v", theta, got, want)
		}
	}

	// Self rotation of the child does not move it.
	before := moon.WorldPosition()
	moon.SetRotationY(1.2)
	if !moon.WorldPosition().ApproxEqualThreshold(before, 1e-9) {
		t.Fatalf("self rotation moved the moon")
	}
}

func TestNilNodeWritesAreNoops(t *testing.T) {
	var n *Node
	n.SetPosition(mgl64.Vec3{1, 2, 3})
	n.SetRotationY(1)
	n.SetScale(0.1)
}

func TestScaleAppliesToChildren(t *testing.T) {
	model := NewModel("shuttle")
	part := NewGroup("shuttle/0")
	part.SetPosition(mgl64.Vec3{10, 0, 0})
	_ = model.Add(part)
	model.SetScale(0.1)
	model.SetPosition(mgl64.Vec3{52, 0, 0})

	if got, want := part.WorldPosition(), (mgl64.Vec3{53, 0, 0}); !got.ApproxEqualThreshold(want, 1e-9) {
		t.Fatalf("part world position = %v, want %v", got, want)
	}
}
