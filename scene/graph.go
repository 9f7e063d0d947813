package scene

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyAttached indicates the node already has a parent.
	ErrAlreadyAttached = errors.New("node is already attached")
	// ErrNodeExists indicates another node already uses the ID.
	ErrNodeExists = errors.New("node ID already exists")
	// ErrNodeNotFound indicates a referenced node is not in the graph.
	ErrNodeNotFound = errors.New("node not found")
)

// RootID is the ID of the scene root.
const RootID = "scene"

// EventType indicates what kind of change happened in the graph.
type EventType int

const (
	EventNodeAttached EventType = iota
)

// Event is emitted to subscribers when the tree changes.
type Event struct {
	Type     EventType
	NodeID   string
	ParentID string
	// Nodes is the number of nodes inserted, including descendants.
	Nodes int
}

// Background is the skybox: one texture per cube face in +x, -x, +y, -y,
// +z, -z order.
type Background struct {
	Faces [6]string
}

// Graph is the render tree. It owns every node; body records elsewhere hold
// non-owning pointers for transform updates.
type Graph struct {
	mu sync.RWMutex

	root       *Node
	index      map[string]*Node
	background Background

	nextSub int
	subs    map[int]func(Event)
}

// NewGraph returns a graph holding only the root node.
func NewGraph() *Graph {
	root := NewGroup(RootID)
	return &Graph{
		root:  root,
		index: map[string]*Node{RootID: root},
		subs:  make(map[int]func(Event)),
	}
}

// Root returns the scene root.
func (g *Graph) Root() *Node { return g.root }

// SetBackground replaces the skybox.
func (g *Graph) SetBackground(b Background) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.background = b
}

// Background returns the skybox.
func (g *Graph) Background() Background {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.background
}

// Add inserts n and its descendants under the parent with the given ID.
// Insertion is all-or-nothing: on error the graph is unchanged.
func (g *Graph) Add(parentID string, n *Node) error {
	if n == nil {
		return fmt.Errorf("add: %w", ErrNodeNotFound)
	}

	g.mu.Lock()
	parent, ok := g.index[parentID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("add %q under %q: %w", n.ID, parentID, ErrNodeNotFound)
	}
	if n.parent != nil || n == g.root {
		g.mu.Unlock()
		return fmt.Errorf("add %q: %w", n.ID, ErrAlreadyAttached)
	}

	var ids []string
	seen := make(map[string]bool)
	var dup string
	n.walk(0, func(c *Node, _ int) {
		if _, exists := g.index[c.ID]; exists || seen[c.ID] {
			if dup == "" {
				dup = c.ID
			}
			return
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	})
	if dup != "" {
		g.mu.Unlock()
		return fmt.Errorf("add %q: %w: %q", n.ID, ErrNodeExists, dup)
	}

	n.parent = parent
	parent.children = append(parent.children, n)
	n.walk(0, func(c *Node, _ int) { g.index[c.ID] = c })

	event := Event{
		Type:     EventNodeAttached,
		NodeID:   n.ID,
		ParentID: parentID,
		Nodes:    len(ids),
	}
	subs := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Attach inserts a fully configured node under the root. A node can be
// attached at most once.
func (g *Graph) Attach(n *Node) error {
	return g.Add(RootID, n)
}

// Get returns the node with the given ID, or nil if not found.
func (g *Graph) Get(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.index[id]
}

// Contains reports whether a node with the ID is in the graph.
func (g *Graph) Contains(id string) bool {
	return g.Get(id) != nil
}

// Len returns the number of nodes including the root.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}

// Walk visits every node depth-first, parents before children.
func (g *Graph) Walk(fn func(n *Node, depth int)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	g.root.walk(0, fn)
}

// Subscribe registers a callback for graph events. It returns an
// unsubscribe function.
func (g *Graph) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}
