package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/livegraph/internal/feed"
	"github.com/nvandessel/livegraph/internal/ratelimit"
	"github.com/nvandessel/livegraph/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live layouts to a browser",
		Long: `Start the frame loop and a local web server showing the live layout.

Drivers push snapshots with POST /api/snapshot?pane=<name> or over the page's
websocket; --watch reloads a snapshot file on every save.

Examples:
  livegraph serve --watch graph.json
  livegraph serve --addr localhost:8080 --record --no-open
  curl -X POST --data @graph.json localhost:8080/api/snapshot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			watch, _ := cmd.Flags().GetString("watch")
			pane, _ := cmd.Flags().GetString("pane")
			record, _ := cmd.Flags().GetBool("record")
			label, _ := cmd.Flags().GetString("label")
			noOpen, _ := cmd.Flags().GetBool("no-open")

			rt, err := newRuntime(cfg, runtimeOptions{record: record, label: label, logOut: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, err := visualization.NewServer(rt.loop, visualization.Options{
				Addr:           cfg.Server.Addr,
				SurfaceWidth:   cfg.Server.SurfaceWidth,
				SurfaceHeight:  cfg.Server.SurfaceHeight,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Gatherer:       rt.registry,
				Limits:         ratelimit.DefaultLimits(),
				Logger:         rt.logger,
			})
			if err != nil {
				return err
			}

			var watcher *feed.Watcher
			if watch != "" {
				watcher, err = feed.New(rt.loop, feed.Options{
					Path:     watch,
					Pane:     pane,
					Debounce: cfg.Feed.Debounce,
					Logger:   rt.logger,
				})
				if err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error { return rt.loop.Run(gctx) })
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			if watcher != nil {
				g.Go(func() error { return watcher.Run(gctx) })
			}
			g.Go(func() error {
				url, err := waitForURL(gctx, srv)
				if err != nil || url == "" {
					return err
				}
				if pane != "" {
					url += "?pane=" + pane
				}
				fmt.Fprintf(cmd.OutOrStdout(), "livegraph running at %s\n", url)
				fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
				if !noOpen {
					if err := visualization.OpenBrowser(url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
					}
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, localhost:0)")
	cmd.Flags().String("watch", "", "Snapshot file (JSON or YAML) to reload on every change")
	cmd.Flags().String("pane", "", "Pane the watched file feeds (default main)")
	cmd.Flags().Bool("record", false, "Record accepted snapshots for replay")
	cmd.Flags().String("label", "", "Label for recorded sessions")
	cmd.Flags().Bool("no-open", false, "Don't open a browser")

	return cmd
}

// waitForURL waits for the server to bind. It returns "" if ctx ends first.
func waitForURL(ctx context.Context, srv *visualization.Server) (string, error) {
	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if url := srv.URL(); url != "" {
			return url, nil
		}
		select {
		case <-ctx.Done():
			return "", nil
		case <-deadline.C:
			return "", fmt.Errorf("server failed to start")
		case <-tick.C:
		}
	}
}
