package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/orbit-scene/scene"
)

const shuttleGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [
    {"name": "hull", "translation": [1, 2, 3], "children": [1]},
    {"name": "wing", "scale": [2, 2, 2]}
  ]
}`

func writeGLTF(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "scene.gltf")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write gltf: %v", err)
	}
	return p
}

func checkShuttle(t *testing.T, root *scene.Node) {
	t.Helper()
	if root.ID != "shuttle" || root.Kind != scene.KindModel {
		t.Fatalf("root = %s (%v), want shuttle model", root.ID, root.Kind)
	}
	kids := root.Children()
	if len(kids) != 1 {
		t.Fatalf("root has %d children, want 1", len(kids))
	}
	hull := kids[0]
	if hull.ID != "shuttle/0" || hull.Name != "hull" {
		t.Fatalf("hull = %s/%s", hull.ID, hull.Name)
	}
	if hull.Position[0] != 1 || hull.Position[1] != 2 || hull.Position[2] != 3 {
		t.Fatalf("hull position = %v", hull.Position)
	}
	wings := hull.Children()
	if len(wings) != 1 || wings[0].Name != "wing" || wings[0].Scale[0] != 2 {
		t.Fatalf("unexpected wing nodes %v", wings)
	}
}

func TestGLTFFetcherLocalFile(t *testing.T) {
	p := writeGLTF(t, shuttleGLTF)

	root, err := NewGLTFFetcher("").Fetch(context.Background(), "shuttle", p)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	checkShuttle(t, root)
}

func TestGLTFFetcherRelativeToBaseDir(t *testing.T) {
	p := writeGLTF(t, shuttleGLTF)

	root, err := NewGLTFFetcher(filepath.Dir(p)).Fetch(context.Background(), "shuttle", "scene.gltf")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	checkShuttle(t, root)
}

func TestGLTFFetcherHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shuttle/scene.gltf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "model/gltf+json")
		_, _ = w.Write([]byte(shuttleGLTF))
	}))
	defer srv.Close()

	f := &GLTFFetcher{Client: srv.Client()}
	root, err := f.Fetch(context.Background(), "shuttle", srv.URL+"/shuttle/scene.gltf")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	checkShuttle(t, root)

	if _, err := f.Fetch(context.Background(), "satellite", srv.URL+"/satellite/scene.gltf"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestGLTFFetcherMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.gltf")
	if _, err := NewGLTFFetcher("").Fetch(context.Background(), "satellite", missing); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGLTFFetcherRejectsUnknownScheme(t *testing.T) {
	if _, err := NewGLTFFetcher("").Fetch(context.Background(), "x", "ftp://host/scene.gltf"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

func TestGLTFFetcherMatrixNode(t *testing.T) {
	p := writeGLTF(t, `{
  "asset": {"version": "2.0"},
  "scenes": [{"nodes": [0]}],
  "nodes": [{"matrix": [3,0,0,0, 0,3,0,0, 0,0,3,0, 5,6,7,1]}]
}`)

	root, err := NewGLTFFetcher("").Fetch(context.Background(), "probe", p)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	n := root.Children()[0]
	if n.Position[0] != 5 || n.Position[1] != 6 || n.Position[2] != 7 {
		t.Fatalf("position = %v, want (5,6,7)", n.Position)
	}
	if n.Scale[0] != 3 || n.Scale[2] != 3 {
		t.Fatalf("scale = %v, want 3", n.Scale)
	}
}
