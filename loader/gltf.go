package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/signalsfoundry/orbit-scene/scene"
)

// GLTFFetcher loads glTF 2.0 scene files from a local path, a file:// URL or
// an http(s):// URL and converts the default scene's node hierarchy into
// scene nodes. Mesh data stays with the viewer; only the node tree and its
// transforms are kept.
type GLTFFetcher struct {
	Client *http.Client
	// BaseDir resolves relative local paths. Empty means the working directory.
	BaseDir string
}

// NewGLTFFetcher returns a fetcher with a bounded HTTP client.
func NewGLTFFetcher(baseDir string) *GLTFFetcher {
	return &GLTFFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseDir: baseDir,
	}
}

// Fetch implements Fetcher.
func (f *GLTFFetcher) Fetch(ctx context.Context, id, rawURL string) (*scene.Node, error) {
	doc, err := f.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return buildModel(id, doc)
}

func (f *GLTFFetcher) open(ctx context.Context, rawURL string) (*gltf.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.openHTTP(ctx, u)
	case "file":
		return gltf.Open(filepath.FromSlash(u.Path))
	case "":
		p := rawURL
		if !filepath.IsAbs(p) && f.BaseDir != "" {
			p = filepath.Join(f.BaseDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
		return gltf.Open(p)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (f *GLTFFetcher) openHTTP(ctx context.Context, u *url.URL) (*gltf.Document, error) {
	fsys := &httpFS{ctx: ctx, client: f.client(), base: u}
	data, err := fsys.get(u)
	if err != nil {
		return nil, err
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), fsys).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	return doc, nil
}

func (f *GLTFFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// buildModel converts the default scene into a model node. Child IDs are
// "<id>/<gltf node index>" so they are unique within one model.
func buildModel(id string, doc *gltf.Document) (*scene.Node, error) {
	root := scene.NewModel(id)

	roots, err := sceneRoots(doc)
	if err != nil {
		return nil, err
	}

	visiting := make(map[int]bool)
	var build func(i int) (*scene.Node, error)
	build = func(i int) (*scene.Node, error) {
		if i < 0 || i >= len(doc.Nodes) {
			return nil, fmt.Errorf("node index %d out of range", i)
		}
		if visiting[i] {
			return nil, fmt.Errorf("node %d is part of a cycle", i)
		}
		visiting[i] = true
		defer delete(visiting, i)

		gn := doc.Nodes[i]
		n := scene.NewGroup(fmt.Sprintf("%s/%d", id, i))
		if gn.Name != "" {
			n.Name = gn.Name
		}
		if gn.Mesh != nil {
			n.Kind = scene.KindMesh
		}
		applyTransform(n, gn)

		for _, c := range gn.Children {
			child, err := build(c)
			if err != nil {
				return nil, err
			}
			if err := n.Add(child); err != nil {
				return nil, fmt.Errorf("node %d: %w", c, err)
			}
		}
		return n, nil
	}

	for _, i := range roots {
		n, err := build(i)
		if err != nil {
			return nil, err
		}
		if err := root.Add(n); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return root, nil
}

func sceneRoots(doc *gltf.Document) ([]int, error) {
	if len(doc.Scenes) == 0 {
		return nil, nil
	}
	idx := 0
	if doc.Scene != nil {
		idx = *doc.Scene
	}
	if idx < 0 || idx >= len(doc.Scenes) {
		return nil, fmt.Errorf("default scene %d out of range", idx)
	}
	return doc.Scenes[idx].Nodes, nil
}

// applyTransform copies TRS values, or decomposes the matrix when the node
// uses one instead.
func applyTransform(n *scene.Node, gn *gltf.Node) {
	m := mgl64.Mat4(gn.MatrixOrDefault())
	if m != mgl64.Ident4() {
		col := func(i int) mgl64.Vec3 { return m.Col(i).Vec3() }
		sx, sy, sz := col(0).Len(), col(1).Len(), col(2).Len()
		n.Position = col(3)
		n.Scale = mgl64.Vec3{sx, sy, sz}
		if sx != 0 && sy != 0 && sz != 0 {
			rot := mgl64.Mat4FromCols(
				col(0).Mul(1/sx).Vec4(0),
				col(1).Mul(1/sy).Vec4(0),
				col(2).Mul(1/sz).Vec4(0),
				mgl64.Vec4{0, 0, 0, 1},
			)
			n.Orientation = mgl64.Mat4ToQuat(rot)
		}
		return
	}

	t := gn.TranslationOrDefault()
	r := gn.RotationOrDefault()
	s := gn.ScaleOrDefault()
	n.Position = mgl64.Vec3{t[0], t[1], t[2]}
	n.Orientation = mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
	n.Scale = mgl64.Vec3{s[0], s[1], s[2]}
}

// httpFS resolves buffer and image URIs relative to the scene file URL.
type httpFS struct {
	ctx    context.Context
	client *http.Client
	base   *url.URL
}

func (h *httpFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	ref, err := url.Parse(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	data, err := h.get(h.base.ResolveReference(ref))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memFile{Reader: bytes.NewReader(data), name: path.Base(name), size: int64(len(data))}, nil
}

func (h *httpFS) get(u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (f *memFile) Stat() (fs.FileInfo, error) { return memInfo{name: f.name, size: f.size}, nil }
func (f *memFile) Close() error               { return nil }

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o444 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }
