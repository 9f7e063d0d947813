package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orbit-scene/core"
	"github.com/signalsfoundry/orbit-scene/model"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func checkReferenceScene(t *testing.T, def model.SceneDefinition) {
	t.Helper()

	if def.Camera.FovY != 50 || def.Camera.Near != 0.1 || def.Camera.Far != 1000 {
		t.Fatalf("camera = %+v", def.Camera)
	}
	if def.Camera.Position != (mgl64.Vec3{-80, 10, 90}) {
		t.Fatalf("camera position = %v", def.Camera.Position)
	}
	if len(def.Lights) != 2 || def.Lights[0].Color != 0x333333 || def.Lights[1].Distance != 300 {
		t.Fatalf("lights = %+v", def.Lights)
	}
	if len(def.Bodies) != 4 {
		t.Fatalf("got %d bodies, want 4", len(def.Bodies))
	}

	earth, moon, shuttle, sat := def.Bodies[0], def.Bodies[1], def.Bodies[2], def.Bodies[3]
	if earth.Radius != 16 || earth.Spin != 0.004 || earth.Orbit.Kind != model.OrbitNone {
		t.Fatalf("earth = %+v", earth)
	}
	if moon.Radius != 2.8 || moon.Spin != 0.009 || moon.Orbit.Kind != model.OrbitPivot || moon.Orbit.Radius != 50 || moon.Orbit.Speed != 0.001 {
		t.Fatalf("moon = %+v", moon)
	}
	if shuttle.Orbit.Kind != model.OrbitDirect || shuttle.Orbit.Radius != 40 || shuttle.Orbit.Speed != 0.001 || shuttle.Scale != 0.1 {
		t.Fatalf("shuttle = %+v", shuttle)
	}
	if shuttle.InitialPosition != (mgl64.Vec3{52, 0, 0}) {
		t.Fatalf("shuttle initial position = %v", shuttle.InitialPosition)
	}
	if len(shuttle.Lights) != 1 || shuttle.Lights[0].Position != (mgl64.Vec3{-5, 30, 10}) {
		t.Fatalf("shuttle lights = %+v", shuttle.Lights)
	}
	if len(shuttle.SceneLights) != 1 || shuttle.SceneLights[0].Color != 0x404040 {
		t.Fatalf("shuttle scene lights = %+v", shuttle.SceneLights)
	}
	if sat.Orbit.Radius != 20 || sat.Orbit.Speed != 0.02 || !sat.Loaded() {
		t.Fatalf("satellite = %+v", sat)
	}
}

func TestDefaultIsReferenceScene(t *testing.T) {
	def := Default()
	checkReferenceScene(t, def)
	if err := Validate(def); err != nil {
		t.Fatalf("default scene invalid: %v", err)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	def, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkReferenceScene(t, def)
}

func TestLoadShippedSceneMatchesDefault(t *testing.T) {
	def, err := Load(filepath.Join("..", "..", "configs", "scene.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkReferenceScene(t, def)
}

func TestLoadOverridesScalarsAndReplacesLists(t *testing.T) {
	p := writeConfig(t, "scene.toml", `
width = 800
height = 600

[camera]
fov = 70

[[bodies]]
id = "mars"
radius = 8
texture = "textures/mars.jpg"
orbit = { kind = "direct", radius = 120, speed = 0.0005 }
`)

	def, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Width != 800 || def.Height != 600 || def.Aspect() != 800.0/600.0 {
		t.Fatalf("viewport = %dx%d", def.Width, def.Height)
	}
	if def.Camera.FovY != 70 || def.Camera.Far != 1000 {
		t.Fatalf("camera = %+v, want fov override with default far", def.Camera)
	}
	if len(def.Lights) != 2 {
		t.Fatalf("default lights not kept: %+v", def.Lights)
	}
	if len(def.Bodies) != 1 || def.Bodies[0].ID != "mars" || def.Bodies[0].Orbit.Radius != 120 {
		t.Fatalf("bodies = %+v, want only mars", def.Bodies)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORBITSCENE_WIDTH", "1920")
	t.Setenv("ORBITSCENE_CAMERA_FOV", "45")

	def, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Width != 1920 || def.Camera.FovY != 45 {
		t.Fatalf("env overrides ignored: width=%d fov=%v", def.Width, def.Camera.FovY)
	}
}

func TestLoadRejectsNegativeRadius(t *testing.T) {
	p := writeConfig(t, "scene.toml", `
[[bodies]]
id = "shuttle"
source = "shuttle/scene.gltf"
orbit = { kind = "direct", radius = -40, speed = 0.001 }
`)
	if _, err := Load(p); !errors.Is(err, core.ErrNegativeRadius) {
		t.Fatalf("Load() = %v, want ErrNegativeRadius", err)
	}
}

func TestLoadRejectsUnknownOrbit(t *testing.T) {
	p := writeConfig(t, "scene.toml", `
[[bodies]]
id = "comet"
radius = 1
orbit = { kind = "elliptic" }
`)
	if _, err := Load(p); !errors.Is(err, model.ErrUnknownOrbit) {
		t.Fatalf("Load() = %v, want ErrUnknownOrbit", err)
	}
}

func TestLoadRejectsMalformedTLEField(t *testing.T) {
	p := writeConfig(t, "scene.toml", `
[[bodies]]
id = "iss"
radius = 0.5
orbit = { kind = "tle", step_seconds = 10, km_to_scene = 0.0025, tle1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990", tle2 = "2 25544  5X.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760" }
`)
	if _, err := Load(p); !errors.Is(err, core.ErrInvalidTLE) {
		t.Fatalf("Load() = %v, want ErrInvalidTLE", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*model.SceneDefinition){
		"zero viewport":  func(d *model.SceneDefinition) { d.Width = 0 },
		"bad fov":        func(d *model.SceneDefinition) { d.Camera.FovY = 180 },
		"far below near": func(d *model.SceneDefinition) { d.Camera.Far = 0.01 },
		"bad light":      func(d *model.SceneDefinition) { d.Lights[0].Kind = "spot" },
		"duplicate id":   func(d *model.SceneDefinition) { d.Bodies[1].ID = "earth" },
		"empty id":       func(d *model.SceneDefinition) { d.Bodies[0].ID = "" },
		"slash in id":    func(d *model.SceneDefinition) { d.Bodies[0].ID = "a/b" },
		"sphere without radius": func(d *model.SceneDefinition) {
			d.Bodies[0].Radius = 0
		},
		"loaded pivot": func(d *model.SceneDefinition) {
			d.Bodies[2].Orbit.Kind = model.OrbitPivot
		},
		"tle without lines": func(d *model.SceneDefinition) {
			d.Bodies[3].Orbit = model.OrbitDefinition{Kind: model.OrbitTLE, StepSeconds: 1, KmToScene: 1}
		},
	}
	for name, mutate := range cases {
		def := Default()
		mutate(&def)
		if err := Validate(def); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDefinitionRejectsShortVector(t *testing.T) {
	f := DefaultFile()
	f.Camera.Position = []float64{1, 2}
	if _, err := f.Definition(); !errors.Is(err, ErrInvalidScene) {
		t.Fatalf("Definition() = %v, want ErrInvalidScene", err)
	}
}
