// Package config provides unified configuration loading for livegraph.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/livegraph/internal/force"
	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// FileName is the config file name inside ~/.livegraph.
const FileName = "config.yaml"

// Config contains all livegraph configuration settings.
type Config struct {
	// Layout contains the physics and rendering defaults.
	Layout LayoutConfig `json:"layout" yaml:"layout"`

	// Lens contains the fisheye parameters used when a snapshot enables it.
	Lens LensConfig `json:"lens" yaml:"lens"`

	// Server contains settings for the browser container.
	Server ServerConfig `json:"server" yaml:"server"`

	// Feed contains settings for the snapshot file watcher.
	Feed FeedConfig `json:"feed" yaml:"feed"`

	// Recording contains settings for the snapshot journal.
	Recording RecordingConfig `json:"recording" yaml:"recording"`

	// Logging contains settings for operational and merge logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LayoutConfig configures the force simulation and attribute fallbacks.
type LayoutConfig struct {
	AlphaMin       float64 `json:"alpha_min" yaml:"alpha_min"`
	AlphaDecay     float64 `json:"alpha_decay" yaml:"alpha_decay"`
	VelocityDecay  float64 `json:"velocity_decay" yaml:"velocity_decay"`
	ChargeStrength float64 `json:"charge_strength" yaml:"charge_strength"`
	DistanceMin    float64 `json:"distance_min" yaml:"distance_min"`
	LinkDistance   float64 `json:"link_distance" yaml:"link_distance"`

	// ReheatAlpha is the energy restored when a snapshot adds nodes.
	ReheatAlpha float64 `json:"reheat_alpha" yaml:"reheat_alpha"`

	// DragAlphaTarget keeps the layout moving while a node is dragged.
	DragAlphaTarget float64 `json:"drag_alpha_target" yaml:"drag_alpha_target"`

	DefaultNodeRadius float64 `json:"default_node_radius" yaml:"default_node_radius"`
	DefaultNodeColor  string  `json:"default_node_color" yaml:"default_node_color"`
	DefaultEdgeWidth  float64 `json:"default_edge_width" yaml:"default_edge_width"`
	DefaultEdgeColor  string  `json:"default_edge_color" yaml:"default_edge_color"`
}

// LensConfig configures the fisheye.
type LensConfig struct {
	Radius     float64 `json:"radius" yaml:"radius"`
	Distortion float64 `json:"distortion" yaml:"distortion"`
}

// ServerConfig configures the browser container.
type ServerConfig struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr string `json:"addr" yaml:"addr"`

	// FrameRate is the number of frames per second the loop renders.
	FrameRate int `json:"frame_rate" yaml:"frame_rate"`

	// SurfaceWidth and SurfaceHeight size the drawing surface; the default
	// view centers the layout on it.
	SurfaceWidth  int `json:"surface_width" yaml:"surface_width"`
	SurfaceHeight int `json:"surface_height" yaml:"surface_height"`

	// AllowedOrigins lists extra origins allowed to open the websocket.
	// Same-origin and localhost are always allowed.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// FeedConfig configures the snapshot file watcher.
type FeedConfig struct {
	// Debounce coalesces bursts of writes to the watched file.
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// RecordingConfig configures the snapshot journal.
type RecordingConfig struct {
	// Enabled journals every accepted snapshot while serving.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database. Supports ${VAR} syntax. Empty means
	// ~/.livegraph/recordings.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures livegraph's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" enables the merge journal at ~/.livegraph/merges.jsonl.
	// "trace" additionally logs every drag and pointer event.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	f := force.DefaultConfig()
	l := layout.DefaultConfig()
	return &Config{
		Layout: LayoutConfig{
			AlphaMin:          f.AlphaMin,
			AlphaDecay:        f.AlphaDecay,
			VelocityDecay:     f.VelocityDecay,
			ChargeStrength:    f.ChargeStrength,
			DistanceMin:       f.DistanceMin,
			LinkDistance:      f.LinkDistance,
			ReheatAlpha:       l.ReheatAlpha,
			DragAlphaTarget:   l.DragAlphaTarget,
			DefaultNodeRadius: l.DefaultNodeRadius,
			DefaultNodeColor:  l.DefaultNodeColor,
			DefaultEdgeWidth:  l.DefaultEdgeWidth,
			DefaultEdgeColor:  l.DefaultEdgeColor,
		},
		Lens: LensConfig{
			Radius:     l.LensRadius,
			Distortion: l.LensDistortion,
		},
		Server: ServerConfig{
			Addr:          "localhost:0",
			FrameRate:     60,
			SurfaceWidth:  800,
			SurfaceHeight: 600,
		},
		Feed: FeedConfig{
			Debounce: 100 * time.Millisecond,
		},
		Recording: RecordingConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.livegraph.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".livegraph"), nil
}

// Path returns ~/.livegraph/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.livegraph/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Recording.Path = expandEnvVars(config.Recording.Path)

	return config, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func Save(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	l := c.Layout
	if l.AlphaMin <= 0 || l.AlphaMin >= 1 {
		return fmt.Errorf("alpha_min must be in (0, 1), got %g", l.AlphaMin)
	}
	if l.AlphaDecay <= 0 || l.AlphaDecay >= 1 {
		return fmt.Errorf("alpha_decay must be in (0, 1), got %g", l.AlphaDecay)
	}
	if l.VelocityDecay < 0 || l.VelocityDecay > 1 {
		return fmt.Errorf("velocity_decay must be between 0 and 1, got %g", l.VelocityDecay)
	}
	if l.DistanceMin <= 0 {
		return fmt.Errorf("distance_min must be positive, got %g", l.DistanceMin)
	}
	if l.LinkDistance < 0 {
		return fmt.Errorf("link_distance must be non-negative, got %g", l.LinkDistance)
	}
	if l.ReheatAlpha < 0 || l.ReheatAlpha > 1 {
		return fmt.Errorf("reheat_alpha must be between 0 and 1, got %g", l.ReheatAlpha)
	}
	if l.DragAlphaTarget < 0 || l.DragAlphaTarget > 1 {
		return fmt.Errorf("drag_alpha_target must be between 0 and 1, got %g", l.DragAlphaTarget)
	}
	if l.DefaultNodeRadius <= 0 || l.DefaultEdgeWidth < 0 {
		return fmt.Errorf("default_node_radius must be positive and default_edge_width non-negative")
	}
	for _, color := range []string{l.DefaultNodeColor, l.DefaultEdgeColor} {
		if color == "" || !snapshot.ValidColor(color) {
			return fmt.Errorf("invalid default color: %q", color)
		}
	}

	if c.Lens.Radius < 0 || c.Lens.Distortion < 0 {
		return fmt.Errorf("lens radius and distortion must be non-negative")
	}

	if c.Server.FrameRate <= 0 || c.Server.FrameRate > 240 {
		return fmt.Errorf("frame_rate must be between 1 and 240, got %d", c.Server.FrameRate)
	}
	if c.Server.SurfaceWidth <= 0 || c.Server.SurfaceHeight <= 0 {
		return fmt.Errorf("surface size must be positive, got %dx%d", c.Server.SurfaceWidth, c.Server.SurfaceHeight)
	}

	if c.Feed.Debounce < 0 {
		return fmt.Errorf("feed debounce must be non-negative, got %v", c.Feed.Debounce)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// FrameInterval returns the period between rendered frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Server.FrameRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Server.FrameRate)
}

// Engine converts the settings into a layout engine configuration.
func (c *Config) Engine() layout.Config {
	cfg := layout.DefaultConfig()
	cfg.Force.AlphaMin = c.Layout.AlphaMin
	cfg.Force.AlphaDecay = c.Layout.AlphaDecay
	cfg.Force.VelocityDecay = c.Layout.VelocityDecay
	cfg.Force.ChargeStrength = c.Layout.ChargeStrength
	cfg.Force.DistanceMin = c.Layout.DistanceMin
	cfg.Force.LinkDistance = c.Layout.LinkDistance
	cfg.ReheatAlpha = c.Layout.ReheatAlpha
	cfg.DragAlphaTarget = c.Layout.DragAlphaTarget
	cfg.LensRadius = c.Lens.Radius
	cfg.LensDistortion = c.Lens.Distortion
	cfg.DefaultNodeRadius = c.Layout.DefaultNodeRadius
	cfg.DefaultNodeColor = c.Layout.DefaultNodeColor
	cfg.DefaultEdgeWidth = c.Layout.DefaultEdgeWidth
	cfg.DefaultEdgeColor = c.Layout.DefaultEdgeColor
	cfg.View = lens.Centered(float64(c.Server.SurfaceWidth), float64(c.Server.SurfaceHeight))
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LIVEGRAPH_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("LIVEGRAPH_FRAME_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.FrameRate = n
		}
	}

	if v := os.Getenv("LIVEGRAPH_ALLOWED_ORIGINS"); v != "" {
		config.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("LIVEGRAPH_LENS_RADIUS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Lens.Radius = f
		}
	}

	if v := os.Getenv("LIVEGRAPH_LENS_DISTORTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Lens.Distortion = f
		}
	}

	if v := os.Getenv("LIVEGRAPH_RECORD"); v != "" {
		config.Recording.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("LIVEGRAPH_RECORDING_PATH"); v != "" {
		config.Recording.Path = v
	}

	if v := os.Getenv("LIVEGRAPH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
