// Package config loads the scene description. A TOML file is read with
// viper and layered over the built-in reference scene; ORBITSCENE_* environment
// variables override scalar keys.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/orbit-scene/core"
	"github.com/signalsfoundry/orbit-scene/model"
)

// EnvPrefix prefixes environment overrides, e.g. ORBITSCENE_WIDTH or
// ORBITSCENE_CAMERA_FOV.
const EnvPrefix = "ORBITSCENE"

// ErrInvalidScene wraps every validation failure.
var ErrInvalidScene = errors.New("invalid scene")

// File is the on-disk shape of a scene description.
type File struct {
	Skybox string        `mapstructure:"skybox"`
	Width  int           `mapstructure:"width"`
	Height int           `mapstructure:"height"`
	Camera CameraConfig  `mapstructure:"camera"`
	Lights []LightConfig `mapstructure:"lights"`
	Bodies []BodyConfig  `mapstructure:"bodies"`
}

// CameraConfig is the [camera] table.
type CameraConfig struct {
	Fov         float64   `mapstructure:"fov"`
	Near        float64   `mapstructure:"near"`
	Far         float64   `mapstructure:"far"`
	Position    []float64 `mapstructure:"position"`
	Target      []float64 `mapstructure:"target"`
	MinDistance float64   `mapstructure:"min_distance"`
	MaxDistance float64   `mapstructure:"max_distance"`
}

// LightConfig is one [[lights]] entry.
type LightConfig struct {
	Kind      string    `mapstructure:"kind"`
	Color     uint32    `mapstructure:"color"`
	Intensity float64   `mapstructure:"intensity"`
	Distance  float64   `mapstructure:"distance"`
	Position  []float64 `mapstructure:"position"`
}

// OrbitConfig is the orbit table of a body.
type OrbitConfig struct {
	Kind        string    `mapstructure:"kind"`
	Center      []float64 `mapstructure:"center"`
	Radius      float64   `mapstructure:"radius"`
	Speed       float64   `mapstructure:"speed"`
	TLE1        string    `mapstructure:"tle1"`
	TLE2        string    `mapstructure:"tle2"`
	StepSeconds float64   `mapstructure:"step_seconds"`
	KmToScene   float64   `mapstructure:"km_to_scene"`
	Epoch       string    `mapstructure:"epoch"` // RFC 3339
}

// BodyConfig is one [[bodies]] entry.
type BodyConfig struct {
	ID       string  `mapstructure:"id"`
	Name     string  `mapstructure:"name"`
	Radius   float64 `mapstructure:"radius"`
	Texture  string  `mapstructure:"texture"`
	Material string  `mapstructure:"material"`
	Color    uint32  `mapstructure:"color"`

	Source          string        `mapstructure:"source"`
	Scale           float64       `mapstructure:"scale"`
	InitialPosition []float64     `mapstructure:"initial_position"`
	Lights          []LightConfig `mapstructure:"lights"`
	SceneLights     []LightConfig `mapstructure:"scene_lights"`

	Spin  float64     `mapstructure:"spin"`
	Orbit OrbitConfig `mapstructure:"orbit"`
}

// DefaultFile returns the reference scene in file form.
func DefaultFile() File {
	return File{
		Skybox: "textures/stars.jpg",
		Width:  1280,
		Height: 720,
		Camera: CameraConfig{
			Fov:         50,
			Near:        0.1,
			Far:         1000,
			Position:    []float64{-80, 10, 90},
			Target:      []float64{0, 0, 0},
			MinDistance: 20,
			MaxDistance: 600,
		},
		Lights: []LightConfig{
			{Kind: "ambient", Color: 0x333333, Intensity: 1},
			{Kind: "point", Color: 0xFFFFFF, Intensity: 2, Distance: 300},
		},
		Bodies: []BodyConfig{
			{
				ID:       "earth",
				Name:     "Earth",
				Radius:   16,
				Texture:  "textures/earth.jpg",
				Material: "basic",
				Spin:     0.004,
			},
			{
				ID:       "moon",
				Name:     "Moon",
				Radius:   2.8,
				Texture:  "textures/lunar.jpg",
				Material: "standard",
				Spin:     0.009,
				Orbit:    OrbitConfig{Kind: "pivot", Radius: 50, Speed: 0.001},
			},
			{
				ID:              "shuttle",
				Name:            "Space Shuttle",
				Source:          "shuttle/scene.gltf",
				Scale:           0.1,
				InitialPosition: []float64{52, 0, 0},
				Lights: []LightConfig{
					{Kind: "point", Color: 0xFFFFFF, Intensity: 2, Position: []float64{-5, 30, 10}},
				},
				SceneLights: []LightConfig{
					{Kind: "ambient", Color: 0x404040, Intensity: 1},
				},
				Orbit: OrbitConfig{Kind: "direct", Center: []float64{0, 0, 0}, Radius: 40, Speed: 0.001},
			},
			{
				ID:     "satellite",
				Name:   "Satellite",
				Source: "satellite/scene.gltf",
				Scale:  0.1,
				Orbit:  OrbitConfig{Kind: "direct", Center: []float64{0, 0, 0}, Radius: 20, Speed: 0.02},
			},
		},
	}
}

// Default returns the reference scene.
func Default() model.SceneDefinition {
	def, err := DefaultFile().Definition()
	if err != nil {
		panic(fmt.Sprintf("config: default scene invalid: %v", err))
	}
	return def
}

// Load reads path over the defaults and validates the result. The format
// follows the file extension, TOML when there is none. An empty path yields
// the defaults with environment overrides applied.
func Load(path string) (model.SceneDefinition, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	f := DefaultFile()
	v.SetDefault("skybox", f.Skybox)
	v.SetDefault("width", f.Width)
	v.SetDefault("height", f.Height)
	v.SetDefault("camera.fov", f.Camera.Fov)
	v.SetDefault("camera.near", f.Camera.Near)
	v.SetDefault("camera.far", f.Camera.Far)
	v.SetDefault("camera.min_distance", f.Camera.MinDistance)
	v.SetDefault("camera.max_distance", f.Camera.MaxDistance)

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return model.SceneDefinition{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// Lists replace the defaults wholesale instead of merging element-wise.
	if v.IsSet("lights") {
		f.Lights = nil
	}
	if v.IsSet("bodies") {
		f.Bodies = nil
	}
	if v.IsSet("camera.position") {
		f.Camera.Position = nil
	}
	if v.IsSet("camera.target") {
		f.Camera.Target = nil
	}

	if err := v.Unmarshal(&f); err != nil {
		return model.SceneDefinition{}, fmt.Errorf("decode config: %w", err)
	}
	def, err := f.Definition()
	if err != nil {
		return model.SceneDefinition{}, err
	}
	if err := Validate(def); err != nil {
		return model.SceneDefinition{}, err
	}
	return def, nil
}

// Definition converts the file form into a scene definition. It checks
// shapes (vector lengths, orbit kinds, timestamps); Validate checks values.
func (f File) Definition() (model.SceneDefinition, error) {
	def := model.SceneDefinition{
		Skybox: f.Skybox,
		Width:  f.Width,
		Height: f.Height,
	}

	var err error
	def.Camera = model.CameraDefinition{
		FovY:        f.Camera.Fov,
		Near:        f.Camera.Near,
		Far:         f.Camera.Far,
		MinDistance: f.Camera.MinDistance,
		MaxDistance: f.Camera.MaxDistance,
	}
	if def.Camera.Position, err = vec3("camera.position", f.Camera.Position); err != nil {
		return def, err
	}
	if def.Camera.Target, err = vec3("camera.target", f.Camera.Target); err != nil {
		return def, err
	}

	if def.Lights, err = lights("lights", f.Lights); err != nil {
		return def, err
	}

	for i, b := range f.Bodies {
		body, err := b.definition()
		if err != nil {
			return def, fmt.Errorf("bodies[%d]: %w", i, err)
		}
		def.Bodies = append(def.Bodies, body)
	}
	return def, nil
}

func (b BodyConfig) definition() (model.BodyDefinition, error) {
	body := model.BodyDefinition{
		ID:       b.ID,
		Name:     b.Name,
		Radius:   b.Radius,
		Texture:  b.Texture,
		Material: b.Material,
		Color:    b.Color,
		Source:   b.Source,
		Scale:    b.Scale,
		Spin:     b.Spin,
	}

	var err error
	if body.InitialPosition, err = vec3("initial_position", b.InitialPosition); err != nil {
		return body, err
	}
	if body.Lights, err = lights("lights", b.Lights); err != nil {
		return body, err
	}
	if body.SceneLights, err = lights("scene_lights", b.SceneLights); err != nil {
		return body, err
	}

	kind, ok := model.ParseOrbitKind(strings.ToLower(b.Orbit.Kind))
	if !ok {
		return body, fmt.Errorf("orbit kind %q: %w", b.Orbit.Kind, model.ErrUnknownOrbit)
	}
	body.Orbit = model.OrbitDefinition{
		Kind:        kind,
		Radius:      b.Orbit.Radius,
		Speed:       b.Orbit.Speed,
		TLE1:        b.Orbit.TLE1,
		TLE2:        b.Orbit.TLE2,
		StepSeconds: b.Orbit.StepSeconds,
		KmToScene:   b.Orbit.KmToScene,
	}
	if body.Orbit.Center, err = vec3("orbit.center", b.Orbit.Center); err != nil {
		return body, err
	}
	if b.Orbit.Epoch != "" {
		if body.Orbit.Epoch, err = time.Parse(time.RFC3339, b.Orbit.Epoch); err != nil {
			return body, fmt.Errorf("orbit.epoch: %w", err)
		}
	}
	return body, nil
}

func lights(field string, in []LightConfig) ([]model.LightDefinition, error) {
	var out []model.LightDefinition
	for i, l := range in {
		pos, err := vec3(fmt.Sprintf("%s[%d].position", field, i), l.Position)
		if err != nil {
			return nil, err
		}
		out = append(out, model.LightDefinition{
			Kind:      strings.ToLower(l.Kind),
			Color:     l.Color,
			Intensity: l.Intensity,
			Distance:  l.Distance,
			Position:  pos,
		})
	}
	return out, nil
}

// vec3 converts an optional three-element list. An empty list is the origin.
func vec3(field string, v []float64) (mgl64.Vec3, error) {
	switch len(v) {
	case 0:
		return mgl64.Vec3{}, nil
	case 3:
		return mgl64.Vec3{v[0], v[1], v[2]}, nil
	default:
		return mgl64.Vec3{}, fmt.Errorf("%s: want 3 components, got %d: %w", field, len(v), ErrInvalidScene)
	}
}

// Validate checks a scene definition for values the composer cannot use.
func Validate(def model.SceneDefinition) error {
	if def.Width <= 0 || def.Height <= 0 {
		return fmt.Errorf("viewport %dx%d: %w", def.Width, def.Height, ErrInvalidScene)
	}

	c := def.Camera
	if c.FovY <= 0 || c.FovY >= 180 {
		return fmt.Errorf("camera fov %v: %w", c.FovY, ErrInvalidScene)
	}
	if c.Near <= 0 || c.Far <= c.Near {
		return fmt.Errorf("camera near %v far %v: %w", c.Near, c.Far, ErrInvalidScene)
	}
	if c.MinDistance < 0 || (c.MaxDistance > 0 && c.MaxDistance < c.MinDistance) {
		return fmt.Errorf("camera distance range [%v, %v]: %w", c.MinDistance, c.MaxDistance, ErrInvalidScene)
	}

	if err := validateLights("lights", def.Lights); err != nil {
		return err
	}

	seen := make(map[string]bool, len(def.Bodies))
	for _, b := range def.Bodies {
		if err := validateBody(b); err != nil {
			return fmt.Errorf("body %q: %w", b.ID, err)
		}
		if seen[b.ID] {
			return fmt.Errorf("body %q: duplicate id: %w", b.ID, ErrInvalidScene)
		}
		seen[b.ID] = true
	}
	return nil
}

func validateBody(b model.BodyDefinition) error {
	if b.ID == "" {
		return fmt.Errorf("missing id: %w", ErrInvalidScene)
	}
	if strings.Contains(b.ID, "/") {
		return fmt.Errorf("id must not contain '/': %w", ErrInvalidScene)
	}

	if b.Loaded() {
		if b.Scale < 0 {
			return fmt.Errorf("scale %v: %w", b.Scale, ErrInvalidScene)
		}
	} else {
		if err := core.ValidateRadius(b.Radius); err != nil {
			return err
		}
		if b.Radius == 0 {
			return fmt.Errorf("sphere needs a radius or a source: %w", ErrInvalidScene)
		}
		if b.Material != "" && b.Material != "basic" && b.Material != "standard" {
			return fmt.Errorf("material %q: %w", b.Material, ErrInvalidScene)
		}
	}

	if err := validateLights("lights", b.Lights); err != nil {
		return err
	}
	if err := validateLights("scene_lights", b.SceneLights); err != nil {
		return err
	}

	o := b.Orbit
	switch o.Kind {
	case model.OrbitNone:
	case model.OrbitDirect, model.OrbitPivot:
		if err := core.ValidateRadius(o.Radius); err != nil {
			return err
		}
		if o.Kind == model.OrbitPivot && b.Loaded() {
			return fmt.Errorf("pivot orbits need a built-in sphere: %w", ErrInvalidScene)
		}
	case model.OrbitTLE:
		if o.TLE1 == "" || o.TLE2 == "" {
			return fmt.Errorf("tle orbit needs tle1 and tle2: %w", ErrInvalidScene)
		}
		if err := core.ValidateTLE(o.TLE1, o.TLE2); err != nil {
			return err
		}
		if o.StepSeconds <= 0 || o.KmToScene <= 0 {
			return fmt.Errorf("tle orbit needs positive step_seconds and km_to_scene: %w", ErrInvalidScene)
		}
	default:
		return fmt.Errorf("orbit kind %v: %w", o.Kind, model.ErrUnknownOrbit)
	}
	return nil
}

func validateLights(field string, ls []model.LightDefinition) error {
	for i, l := range ls {
		if l.Kind != "ambient" && l.Kind != "point" {
			return fmt.Errorf("%s[%d] kind %q: %w", field, i, l.Kind, ErrInvalidScene)
		}
		if l.Intensity < 0 || l.Distance < 0 {
			return fmt.Errorf("%s[%d] intensity/distance must not be negative: %w", field, i, ErrInvalidScene)
		}
	}
	return nil
}
