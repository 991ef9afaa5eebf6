package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/solver"
)

const (
	DefaultFrames    = 600
	DefaultFrameRate = 60.0
	DefaultCols      = 12
	DefaultRows      = 8
	DefaultSpacing   = 0.25
	DefaultSegments  = 10
	DefaultLength    = 2.0
)

type Config struct {
	Substeps          int       `yaml:"substeps"`
	Iterations        int       `yaml:"iterations"`
	FixedTimeStep     bool      `yaml:"fixed_timestep"`
	TimeStepSize      float64   `yaml:"timestep_size"`
	EnableGravity     bool      `yaml:"enable_gravity"`
	Gravity           geom.Vec3 `yaml:"gravity"`
	Damping           float64   `yaml:"damping"`
	InputCapacity     int       `yaml:"input_capacity"`
	OutputCapacity    int       `yaml:"output_capacity"`
	Threaded          bool      `yaml:"threaded"`
	WaitForCompletion bool      `yaml:"wait_for_completion"`
	OutputPolicy      string    `yaml:"output_policy"`
	Frames            int       `yaml:"frames"`
	FrameRate         float64   `yaml:"frame_rate"`
	Scene             Scene     `yaml:"scene"`
}

// Scene lists the objects to spawn. An object either names a mesh file or
// is generated from its dimensions.
type Scene struct {
	Objects []Object `yaml:"objects"`
}

type Object struct {
	Name     string    `yaml:"name"`
	Kind     string    `yaml:"kind"`
	Asset    string    `yaml:"asset,omitempty"`
	Cols     int       `yaml:"cols,omitempty"`
	Rows     int       `yaml:"rows,omitempty"`
	Spacing  float64   `yaml:"spacing,omitempty"`
	Segments int       `yaml:"segments,omitempty"`
	Length   float64   `yaml:"length,omitempty"`
	Wind     geom.Vec3 `yaml:"wind,omitempty"`
	Sway     float64   `yaml:"sway,omitempty"` // anchor or offset amplitude
}

func DefaultScene() Scene {
	return Scene{Objects: []Object{
		{Name: "banner", Kind: "cloth", Cols: DefaultCols, Rows: DefaultRows, Spacing: DefaultSpacing, Sway: 0.5},
		{Name: "tail", Kind: "flesh", Segments: DefaultSegments, Length: DefaultLength, Sway: 0.3},
	}}
}

func DefaultConfig() *Config {
	sc := solver.DefaultConfig()
	return &Config{
		Substeps:       sc.Substeps,
		Iterations:     sc.Iterations,
		TimeStepSize:   sc.TimeStepSize,
		EnableGravity:  sc.EnableGravity,
		Gravity:        sc.Gravity,
		Damping:        sc.Damping,
		InputCapacity:  sc.InputCapacity,
		OutputCapacity: sc.OutputCapacity,
		OutputPolicy:   owner.LatestWins.String(),
		Frames:         DefaultFrames,
		FrameRate:      DefaultFrameRate,
		Scene:          DefaultScene(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Solver() solver.Config {
	return solver.Config{
		Substeps:       c.Substeps,
		Iterations:     c.Iterations,
		FixedTimeStep:  c.FixedTimeStep,
		TimeStepSize:   c.TimeStepSize,
		EnableGravity:  c.EnableGravity,
		Gravity:        c.Gravity,
		Damping:        c.Damping,
		InputCapacity:  c.InputCapacity,
		OutputCapacity: c.OutputCapacity,
	}
}

// Owner converts the file config into the owner's runtime config.
func (c *Config) Owner() (owner.Config, error) {
	policy, err := owner.ParsePolicy(c.OutputPolicy)
	if err != nil {
		return owner.Config{}, err
	}
	oc := owner.Config{
		Solver:            c.Solver(),
		Threaded:          c.Threaded,
		WaitForCompletion: c.WaitForCompletion,
		Policy:            policy,
	}
	if err := oc.Solver.Validate(); err != nil {
		return owner.Config{}, err
	}
	return oc, nil
}

// Dt is the wall-clock frame interval the run loop ticks with.
func (c *Config) Dt() float64 {
	if c.FrameRate <= 0 {
		return 1 / DefaultFrameRate
	}
	return 1 / c.FrameRate
}

func (c *Config) Clone() *Config {
	out := *c
	out.Scene.Objects = append([]Object(nil), c.Scene.Objects...)
	return &out
}
