package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/livegraph/internal/config"
	"github.com/nvandessel/livegraph/internal/mcp"
	"github.com/nvandessel/livegraph/internal/ratelimit"
	"github.com/nvandessel/livegraph/internal/visualization"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve layouts over the Model Context Protocol on stdio",
		Long: `Run an MCP server on stdin/stdout exposing the livegraph_update,
livegraph_reset, livegraph_frame and livegraph_position tools.

With --http the browser page is served as well, so the layout a driver
builds over MCP can be watched live. Logs go to stderr.

Example MCP client configuration:
  {"command": "livegraph", "args": ["mcp-server", "--http", "localhost:8080"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			httpAddr, _ := cmd.Flags().GetString("http")
			record, _ := cmd.Flags().GetBool("record")
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			rt, err := newRuntime(cfg, runtimeOptions{record: record, label: "mcp", logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			var audit *mcp.AuditLogger
			if !noAudit {
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				if audit, err = mcp.NewAuditLogger(dir); err != nil {
					rt.logger.Warn("audit log disabled", "error", err)
				}
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:          "livegraph",
				Version:       buildVersion(),
				Loop:          rt.loop,
				Limits:        ratelimit.DefaultLimits(),
				Audit:         audit,
				SurfaceWidth:  cfg.Server.SurfaceWidth,
				SurfaceHeight: cfg.Server.SurfaceHeight,
				Logger:        rt.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error { return rt.loop.Run(gctx) })
			g.Go(func() error {
				// The client closing stdin ends the session and everything else.
				defer cancel()
				return server.Run(gctx)
			})
			if httpAddr != "" {
				view, err := visualization.NewServer(rt.loop, visualization.Options{
					Addr:           httpAddr,
					SurfaceWidth:   cfg.Server.SurfaceWidth,
					SurfaceHeight:  cfg.Server.SurfaceHeight,
					AllowedOrigins: cfg.Server.AllowedOrigins,
					Gatherer:       rt.registry,
					Limits:         ratelimit.DefaultLimits(),
					Logger:         rt.logger,
				})
				if err != nil {
					cancel()
					g.Wait()
					return err
				}
				g.Go(func() error { return view.ListenAndServe(gctx) })
			}

			rt.logger.Info("MCP server starting", "version", buildVersion())
			if err := g.Wait(); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("http", "", "Also serve the browser page on this address")
	cmd.Flags().Bool("record", false, "Record accepted snapshots for replay")
	cmd.Flags().Bool("no-audit", false, "Don't journal tool calls to ~/.livegraph/audit.jsonl")

	return cmd
}
