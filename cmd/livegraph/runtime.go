package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nvandessel/livegraph/internal/config"
	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/loop"
	"github.com/nvandessel/livegraph/internal/store"
)

// runtime is the frame loop and everything long-running commands wire
// around it.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	merges   *logging.MergeLogger
	recorder *store.Recorder
	registry *prometheus.Registry
	loop     *loop.Loop
}

type runtimeOptions struct {
	record bool
	label  string
	logOut io.Writer
}

func newRuntime(cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   logging.NewLogger(cfg.Logging.Level, opts.logOut),
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if dir, err := config.Dir(); err == nil {
		rt.merges = logging.NewMergeLogger(dir, cfg.Logging.Level)
	}

	if opts.record || cfg.Recording.Enabled {
		rec, err := openRecorder(cfg, "")
		if err != nil {
			rt.merges.Close()
			return nil, err
		}
		rt.recorder = rec
		rt.logger.Info("recording snapshots", "db", rec.Path())
	}

	rt.loop = loop.New(loop.Options{
		Engine:   cfg.Engine(),
		Interval: cfg.FrameInterval(),
		Recorder: rt.recorder,
		Label:    opts.label,
		Metrics:  loop.NewMetrics(rt.registry),
		Logger:   rt.logger,
		Merges:   rt.merges,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			rt.logger.Warn("failed to close recorder", "error", err)
		}
	}
	rt.merges.Close()
}

// openRecorder opens the database named by override, the config, or the
// default location, in that order.
func openRecorder(cfg *config.Config, override string) (*store.Recorder, error) {
	path := override
	if path == "" {
		path = cfg.Recording.Path
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	rec, err := store.NewRecorder(path)
	if err != nil {
		return nil, fmt.Errorf("open recorder: %w", err)
	}
	return rec, nil
}
