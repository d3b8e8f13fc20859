package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/livegraph/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage livegraph configuration",
		Long: `View and modify livegraph configuration settings.

Configuration is stored in ~/.livegraph/config.yaml. LIVEGRAPH_* environment
variables override the file.

Examples:
  livegraph config list                        # Show all settings
  livegraph config get lens.radius             # Get a specific setting
  livegraph config set server.frame_rate 30    # Set a setting
  livegraph config set recording.enabled true`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKey is one dot-notation setting.
type configKey struct {
	name string
	get  func(c *config.Config) any
	set  func(c *config.Config, v string) error
}

func floatKey(name string, field func(c *config.Config) *float64) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*field(c) = f
			return nil
		},
	}
}

func intKey(name string, field func(c *config.Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer: %s", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func stringKey(name string, field func(c *config.Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

var configKeys = []configKey{
	floatKey("layout.alpha_min", func(c *config.Config) *float64 { return &c.Layout.AlphaMin }),
	floatKey("layout.alpha_decay", func(c *config.Config) *float64 { return &c.Layout.AlphaDecay }),
	floatKey("layout.velocity_decay", func(c *config.Config) *float64 { return &c.Layout.VelocityDecay }),
	floatKey("layout.charge_strength", func(c *config.Config) *float64 { return &c.Layout.ChargeStrength }),
	floatKey("layout.distance_min", func(c *config.Config) *float64 { return &c.Layout.DistanceMin }),
	floatKey("layout.link_distance", func(c *config.Config) *float64 { return &c.Layout.LinkDistance }),
	floatKey("layout.reheat_alpha", func(c *config.Config) *float64 { return &c.Layout.ReheatAlpha }),
	floatKey("layout.drag_alpha_target", func(c *config.Config) *float64 { return &c.Layout.DragAlphaTarget }),
	floatKey("layout.default_node_radius", func(c *config.Config) *float64 { return &c.Layout.DefaultNodeRadius }),
	stringKey("layout.default_node_color", func(c *config.Config) *string { return &c.Layout.DefaultNodeColor }),
	floatKey("layout.default_edge_width", func(c *config.Config) *float64 { return &c.Layout.DefaultEdgeWidth }),
	stringKey("layout.default_edge_color", func(c *config.Config) *string { return &c.Layout.DefaultEdgeColor }),
	floatKey("lens.radius", func(c *config.Config) *float64 { return &c.Lens.Radius }),
	floatKey("lens.distortion", func(c *config.Config) *float64 { return &c.Lens.Distortion }),
	stringKey("server.addr", func(c *config.Config) *string { return &c.Server.Addr }),
	intKey("server.frame_rate", func(c *config.Config) *int { return &c.Server.FrameRate }),
	intKey("server.surface_width", func(c *config.Config) *int { return &c.Server.SurfaceWidth }),
	intKey("server.surface_height", func(c *config.Config) *int { return &c.Server.SurfaceHeight }),
	{
		name: "server.allowed_origins",
		get:  func(c *config.Config) any { return strings.Join(c.Server.AllowedOrigins, ",") },
		set: func(c *config.Config, v string) error {
			c.Server.AllowedOrigins = nil
			for _, o := range strings.Split(v, ",") {
				if o = strings.TrimSpace(o); o != "" {
					c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
				}
			}
			return nil
		},
	},
	{
		name: "feed.debounce",
		get:  func(c *config.Config) any { return c.Feed.Debounce.String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.Feed.Debounce = d
			return nil
		},
	},
	{
		name: "recording.enabled",
		get:  func(c *config.Config) any { return c.Recording.Enabled },
		set: func(c *config.Config, v string) error {
			c.Recording.Enabled = v == "true" || v == "1"
			return nil
		},
	},
	stringKey("recording.path", func(c *config.Config) *string { return &c.Recording.Path }),
	stringKey("logging.level", func(c *config.Config) *string { return &c.Logging.Level }),
}

func lookupConfigKey(name string) (configKey, bool) {
	for _, k := range configKeys {
		if k.name == name {
			return k, true
		}
	}
	return configKey{}, false
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			path, _ := configPath(cmd)
			fmt.Fprintf(out, "Configuration (%s):\n\n", path)
			section := ""
			for _, k := range configKeys {
				if s, _, _ := strings.Cut(k.name, "."); s != section {
					if section != "" {
						fmt.Fprintln(out)
					}
					section = s
				}
				fmt.Fprintf(out, "  %-28s %v\n", k.name+":", k.get(cfg))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			key, found := lookupConfigKey(name)
			if !found {
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]any{
						"error": "key not found",
						"key":   name,
					})
				}
				return fmt.Errorf("unknown configuration key: %s", name)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"key":   name,
					"value": key.get(cfg),
				})
			}
			fmt.Fprintf(out, "%s = %v\n", name, key.get(cfg))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, value := args[0], args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			// Edit the file alone so environment overrides are not persisted.
			cfg, err := config.LoadFromFile(path)
			if errors.Is(err, os.ErrNotExist) {
				cfg = config.Default()
			} else if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			key, found := lookupConfigKey(name)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", name)
			}
			if err := key.set(cfg, value); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"status": "updated",
					"key":    name,
					"value":  key.get(cfg),
				})
			}
			fmt.Fprintf(out, "Set %s = %v\n", name, key.get(cfg))
			return nil
		},
	}
}
