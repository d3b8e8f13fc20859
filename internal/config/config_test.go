package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	// Layout defaults
	if config.Layout.VelocityDecay != 0.4 {
		t.Errorf("expected VelocityDecay 0.4, got %g", config.Layout.VelocityDecay)
	}
	if config.Layout.ChargeStrength != -80 {
		t.Errorf("expected ChargeStrength -80, got %g", config.Layout.ChargeStrength)
	}
	if config.Layout.ReheatAlpha != 0.05 {
		t.Errorf("expected ReheatAlpha 0.05, got %g", config.Layout.ReheatAlpha)
	}
	if config.Layout.DefaultNodeColor != "#1f77b4" {
		t.Errorf("expected DefaultNodeColor '#1f77b4', got '%s'", config.Layout.DefaultNodeColor)
	}

	// Lens defaults
	if config.Lens.Radius != 300 || config.Lens.Distortion != 1.5 {
		t.Errorf("expected lens 300/1.5, got %g/%g", config.Lens.Radius, config.Lens.Distortion)
	}

	// Server defaults
	if config.Server.FrameRate != 60 {
		t.Errorf("expected FrameRate 60, got %d", config.Server.FrameRate)
	}
	if config.Server.SurfaceWidth != 800 || config.Server.SurfaceHeight != 600 {
		t.Errorf("expected surface 800x600, got %dx%d", config.Server.SurfaceWidth, config.Server.SurfaceHeight)
	}
	if config.Recording.Enabled {
		t.Error("expected Recording.Enabled to be false by default")
	}

	// Logging defaults
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
layout:
  charge_strength: -120
  default_node_color: steelblue
lens:
  radius: 150
server:
  addr: 127.0.0.1:8090
  frame_rate: 30
feed:
  debounce: 250ms
recording:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Layout.ChargeStrength != -120 {
		t.Errorf("expected ChargeStrength -120, got %g", config.Layout.ChargeStrength)
	}
	if config.Layout.DefaultNodeColor != "steelblue" {
		t.Errorf("expected DefaultNodeColor 'steelblue', got '%s'", config.Layout.DefaultNodeColor)
	}
	if config.Lens.Radius != 150 {
		t.Errorf("expected Lens.Radius 150, got %g", config.Lens.Radius)
	}
	if config.Lens.Distortion != 1.5 {
		t.Errorf("expected unset Lens.Distortion to keep default 1.5, got %g", config.Lens.Distortion)
	}
	if config.Server.Addr != "127.0.0.1:8090" {
		t.Errorf("expected Addr '127.0.0.1:8090', got '%s'", config.Server.Addr)
	}
	if config.FrameInterval() != time.Second/30 {
		t.Errorf("expected FrameInterval 1/30s, got %v", config.FrameInterval())
	}
	if config.Feed.Debounce != 250*time.Millisecond {
		t.Errorf("expected Debounce 250ms, got %v", config.Feed.Debounce)
	}
	if !config.Recording.Enabled {
		t.Error("expected Recording.Enabled to be true")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
recording:
  path: ${TEST_RECORDINGS}/graph.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_RECORDINGS", "/tmp/recs")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Recording.Path != "/tmp/recs/graph.db" {
		t.Errorf("expected Path '/tmp/recs/graph.db', got '%s'", config.Recording.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVEGRAPH_ADDR", "localhost:9999")
	t.Setenv("LIVEGRAPH_FRAME_RATE", "24")
	t.Setenv("LIVEGRAPH_ALLOWED_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("LIVEGRAPH_LENS_RADIUS", "120")
	t.Setenv("LIVEGRAPH_RECORD", "1")
	t.Setenv("LIVEGRAPH_LOG_LEVEL", "debug")

	config := Default()
	applyEnvOverrides(config)

	if config.Server.Addr != "localhost:9999" {
		t.Errorf("expected Addr 'localhost:9999', got '%s'", config.Server.Addr)
	}
	if config.Server.FrameRate != 24 {
		t.Errorf("expected FrameRate 24, got %d", config.Server.FrameRate)
	}
	if len(config.Server.AllowedOrigins) != 2 || config.Server.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("unexpected AllowedOrigins %v", config.Server.AllowedOrigins)
	}
	if config.Lens.Radius != 120 {
		t.Errorf("expected Lens.Radius 120, got %g", config.Lens.Radius)
	}
	if !config.Recording.Enabled {
		t.Error("expected Recording.Enabled to be true")
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestEnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("LIVEGRAPH_FRAME_RATE", "fast")
	t.Setenv("LIVEGRAPH_LENS_DISTORTION", "lots")

	config := Default()
	applyEnvOverrides(config)

	if config.Server.FrameRate != 60 {
		t.Errorf("expected FrameRate to stay 60, got %d", config.Server.FrameRate)
	}
	if config.Lens.Distortion != 1.5 {
		t.Errorf("expected Distortion to stay 1.5, got %g", config.Lens.Distortion)
	}
}

func TestLoad_ReadsHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LIVEGRAPH_FRAME_RATE", "")

	dir := filepath.Join(home, ".livegraph")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("server:\n  frame_rate: 12\n"), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Server.FrameRate != 12 {
		t.Errorf("expected FrameRate 12, got %d", config.Server.FrameRate)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := Default()
	config.Lens.Radius = 90
	config.Feed.Debounce = 2 * time.Second
	if err := Save(config, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected perms 0600, got %o", perm)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Lens.Radius != 90 {
		t.Errorf("expected Lens.Radius 90, got %g", loaded.Lens.Radius)
	}
	if loaded.Feed.Debounce != 2*time.Second {
		t.Errorf("expected Debounce 2s, got %v", loaded.Feed.Debounce)
	}
}

func TestValidate_Valid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha_min zero", func(c *Config) { c.Layout.AlphaMin = 0 }},
		{"alpha_decay one", func(c *Config) { c.Layout.AlphaDecay = 1 }},
		{"velocity_decay above 1", func(c *Config) { c.Layout.VelocityDecay = 1.2 }},
		{"distance_min zero", func(c *Config) { c.Layout.DistanceMin = 0 }},
		{"negative link distance", func(c *Config) { c.Layout.LinkDistance = -1 }},
		{"reheat above 1", func(c *Config) { c.Layout.ReheatAlpha = 2 }},
		{"zero node radius", func(c *Config) { c.Layout.DefaultNodeRadius = 0 }},
		{"bad node color", func(c *Config) { c.Layout.DefaultNodeColor = "not a color!" }},
		{"empty edge color", func(c *Config) { c.Layout.DefaultEdgeColor = "" }},
		{"negative lens radius", func(c *Config) { c.Lens.Radius = -5 }},
		{"zero frame rate", func(c *Config) { c.Server.FrameRate = 0 }},
		{"huge frame rate", func(c *Config) { c.Server.FrameRate = 1000 }},
		{"zero surface", func(c *Config) { c.Server.SurfaceWidth = 0 }},
		{"negative debounce", func(c *Config) { c.Feed.Debounce = -time.Second }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	validLevels := []string{"", "warn", "info", "debug", "trace"}

	for _, level := range validLevels {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected log level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestEngine(t *testing.T) {
	config := Default()
	config.Layout.ChargeStrength = -42
	config.Lens.Radius = 77
	config.Server.SurfaceWidth = 1000
	config.Server.SurfaceHeight = 500

	cfg := config.Engine()
	if cfg.Force.ChargeStrength != -42 {
		t.Errorf("expected ChargeStrength -42, got %g", cfg.Force.ChargeStrength)
	}
	if cfg.LensRadius != 77 {
		t.Errorf("expected LensRadius 77, got %g", cfg.LensRadius)
	}
	if cfg.View.X != 500 || cfg.View.Y != 250 || cfg.View.K != 1 {
		t.Errorf("expected view centered on 1000x500, got %+v", cfg.View)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
server:
  addr: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
