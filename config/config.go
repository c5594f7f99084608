// Package config provides configuration loading and access for the
// solver. A run is described by one YAML document; missing fields fall
// back to the embedded defaults.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ConfigError reports a malformed or missing configuration field.
// Fatal at load time.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "config: " + e.Reason + ": " + e.Err.Error()
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// nomSepScaled is the nominal inter-particle separation in units of
// the diffusion length.
var nomSepScaled = math.Sqrt(8.0)

// Config holds all simulation configuration parameters.
type Config struct {
	Description string         `yaml:"description"`
	Flow        FlowParams     `yaml:"flowparams"`
	Sim         SimParams      `yaml:"simparams"`
	Features    []FeatureSpec  `yaml:"flowfeatures"`
	Bodies      []BodySpec     `yaml:"bodies"`
	Boundaries  []BoundarySpec `yaml:"boundaries"`
	Measures    []MeasureSpec  `yaml:"measurements"`
	Runtime     RuntimeConfig  `yaml:"runtime"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// FlowParams holds the physical flow description.
type FlowParams struct {
	Re   float64 `yaml:"Re"`
	Uinf Vec3    `yaml:"Uinf"`
}

// SimParams holds the numerical parameters of a run.
type SimParams struct {
	NominalDt    float64   `yaml:"nominalDt"`
	OutputDt     float64   `yaml:"outputDt"`
	MaxSteps     *int      `yaml:"maxSteps"`
	EndTime      *float64  `yaml:"endTime"`
	Viscous      string    `yaml:"viscous"`      // "vrm" or "none"
	AdaptiveSize bool      `yaml:"adaptiveSize"`
	VRM          VRMConfig `yaml:"VRM"`
}

// VRMConfig holds the redistribution thresholds.
type VRMConfig struct {
	Ignore   float64 `yaml:"ignore"`
	Adapt    float64 `yaml:"adapt"`
	RadGrad  float64 `yaml:"radgrad"`
	Relative bool    `yaml:"relative"`
	Simplex  bool    `yaml:"simplex"`
}

// FeatureSpec describes one flow feature. Only the fields relevant to
// its type are read.
type FeatureSpec struct {
	Type     string    `yaml:"type"`
	Enabled  *bool     `yaml:"enabled"`
	Center   []float64 `yaml:"center"`
	Strength []float64 `yaml:"strength"`
	Radius   float64   `yaml:"radius"`
	Rad      float64   `yaml:"rad"` // accepted alias for radius
	Softness float64   `yaml:"softness"`
	Size     []float64 `yaml:"size"`
	MaxStr   float64   `yaml:"max strength"`
	Num      int       `yaml:"num"`
	Normal   []float64 `yaml:"normal"`
	MajRad   float64   `yaml:"major radius"`
	MinRad   float64   `yaml:"minor radius"`
	Circ     float64   `yaml:"circulation"`
}

// IsEnabled reports whether the feature participates; default true.
func (f *FeatureSpec) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

// BlobRadius resolves the radius of a vortex blob from either accepted
// key.
func (f *FeatureSpec) BlobRadius() float64 {
	if f.Radius != 0 {
		return f.Radius
	}
	return f.Rad
}

// BodySpec names a rigid body and its prescribed constant motion.
type BodySpec struct {
	Name     string    `yaml:"name"`
	Velocity []float64 `yaml:"velocity"`
	Rotation []float64 `yaml:"rotation"`
}

// BoundarySpec describes one boundary feature.
type BoundarySpec struct {
	Type         string    `yaml:"type"`
	Enabled      *bool     `yaml:"enabled"`
	Body         string    `yaml:"body"`
	Center       []float64 `yaml:"center"`
	Radius       float64   `yaml:"radius"`
	Subdivisions int       `yaml:"subdivisions"`
}

// IsEnabled reports whether the boundary participates; default true.
func (b *BoundarySpec) IsEnabled() bool { return b.Enabled == nil || *b.Enabled }

// MeasureSpec describes one measurement feature.
type MeasureSpec struct {
	Type    string    `yaml:"type"`
	Enabled *bool     `yaml:"enabled"`
	Center  []float64 `yaml:"center"`
	Size    []float64 `yaml:"size"`
	Num     []int     `yaml:"num"`
}

// IsEnabled reports whether the measurement participates; default true.
func (m *MeasureSpec) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// RuntimeConfig holds file-output settings.
type RuntimeConfig struct {
	StatusFile string `yaml:"statusFile"`
	OutputDir  string `yaml:"outputDir"`
}

// DerivedConfig holds values computed from the loaded parameters.
type DerivedConfig struct {
	// Hnu is the diffusion length sqrt(dt/Re).
	Hnu float64
	// Ips is the nominal inter-particle spacing sqrt(8)*Hnu.
	Ips float64
	// Overlap is the ratio of core radius to spacing.
	Overlap float64
	// Vdelta is the nominal core radius Overlap*Ips.
	Vdelta float64
	// Viscous is true when diffusion runs.
	Viscous bool
}

// Vec3 accepts either a scalar (x component) or a 3-element sequence.
type Vec3 [3]float64

// UnmarshalYAML implements the scalar-or-sequence convention for
// freestream velocity.
func (v *Vec3) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var x float64
		if err := node.Decode(&x); err != nil {
			return err
		}
		*v = Vec3{x, 0, 0}
		return nil
	case yaml.SequenceNode:
		var s []float64
		if err := node.Decode(&s); err != nil {
			return err
		}
		if len(s) != 3 {
			return fmt.Errorf("config: Uinf needs 3 components, got %d", len(s))
		}
		copy(v[:], s)
		return nil
	default:
		return fmt.Errorf("config: Uinf must be a number or a 3-vector")
	}
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded
// defaults if path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, &ConfigError{Reason: "parsing embedded defaults", Err: err}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Reason: "reading config file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Reason: "parsing config file", Err: err}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// validate rejects configurations no run could start from.
func (c *Config) validate() error {
	if c.Flow.Re <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("flowparams.Re must be positive, got %g", c.Flow.Re)}
	}
	if c.Sim.NominalDt <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("simparams.nominalDt must be positive, got %g", c.Sim.NominalDt)}
	}
	switch c.Sim.Viscous {
	case "vrm", "none":
	default:
		return &ConfigError{Reason: fmt.Sprintf("simparams.viscous must be %q or %q, got %q", "vrm", "none", c.Sim.Viscous)}
	}
	for i, f := range c.Features {
		switch f.Type {
		case "single particle", "vortex blob", "block of random",
			"particle emitter", "singular ring", "thick ring":
		default:
			return &ConfigError{Reason: fmt.Sprintf("flowfeatures[%d] has unknown type %q", i, f.Type)}
		}
	}
	for i, b := range c.Boundaries {
		if b.Type != "sphere" {
			return &ConfigError{Reason: fmt.Sprintf("boundaries[%d] has unknown type %q", i, b.Type)}
		}
		if b.Radius <= 0 {
			return &ConfigError{Reason: fmt.Sprintf("boundaries[%d] needs a positive radius", i)}
		}
	}
	return nil
}

// computeDerived calculates the length scales the solver runs on.
func (c *Config) computeDerived() {
	c.Derived.Hnu = math.Sqrt(c.Sim.NominalDt / c.Flow.Re)
	c.Derived.Ips = nomSepScaled * c.Derived.Hnu
	c.Derived.Overlap = 1.5
	c.Derived.Vdelta = c.Derived.Overlap * c.Derived.Ips
	c.Derived.Viscous = c.Sim.Viscous == "vrm"
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
