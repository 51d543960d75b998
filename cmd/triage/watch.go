package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/engine"
	"mercator-hq/triage/pkg/recorder"
	"mercator-hq/triage/pkg/recorder/retention"
	"mercator-hq/triage/pkg/rules/source"
	"mercator-hq/triage/pkg/telemetry/health"
	"mercator-hq/triage/pkg/telemetry/logging"
)

var watchFlags struct {
	stages    string
	inbox     string
	listen    string
	processed string
	claims    map[string]string
	reload    bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyse files as they arrive in an inbox directory",
	Long: `Watch an inbox directory and analyse every file written to it.

Files already in the inbox are analysed on start. A file is analysed once
it has been quiet for watch.settle_interval. Results are logged and, when
the recorder is enabled, persisted; the retention policy runs on its cron
schedule. With --reload (or stages.watch) stage files are recompiled on
change; a broken edit keeps the previous pipeline.

While watching, watch.listen_address serves /metrics, /health and /ready.

Examples:
  triage watch --inbox /var/spool/triage --reload
  triage watch --inbox ./inbox --processed ./done --listen 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: watchInbox,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchFlags.stages, "stages", "s", "", "stage file or directory (overrides stages.path)")
	watchCmd.Flags().StringVar(&watchFlags.inbox, "inbox", "", "inbox directory (overrides watch.inbox)")
	watchCmd.Flags().StringVar(&watchFlags.listen, "listen", "", "metrics and health address (overrides watch.listen_address)")
	watchCmd.Flags().StringVar(&watchFlags.processed, "processed", "", "move analysed files into this directory")
	watchCmd.Flags().StringToStringVar(&watchFlags.claims, "claim", nil, "claimed metadata applied to every file, as key=value")
	watchCmd.Flags().BoolVar(&watchFlags.reload, "reload", false, "recompile stages when stage files change")
}

// inbox analyses files for the watch command.
type inbox struct {
	engine    *engine.Engine
	recorder  *recorder.Recorder
	logger    *slog.Logger
	claims    map[string]string
	processed string
}

func (in *inbox) handle(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.analyse(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (in *inbox) analyse(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	ctx = logging.WithArtifact(ctx, path)
	res, err := analyseFile(ctx, in.engine, in.recorder, path, in.claims)
	if err != nil {
		in.logger.ErrorContext(ctx, "analysis failed", "error", err)
		return fmt.Errorf("%s: %w", path, err)
	}

	in.logger.InfoContext(logging.WithRunID(ctx, res.RunID), "artifact analysed",
		"outcome", res.Outcome.Name,
		"severity", res.Outcome.Severity,
		"score", res.Score,
		"risk_hints", res.RiskHints,
		"bounds_exceeded", res.BoundsExceeded,
		"generation", res.Generation,
	)

	if in.processed != "" {
		dst := filepath.Join(in.processed, filepath.Base(path))
		if err := os.Rename(path, dst); err != nil {
			return fmt.Errorf("failed to move %s: %w", path, err)
		}
	}
	return nil
}

// existing lists the regular, non-hidden files already in dir.
func existing(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && entry.Name()[0] != '.' {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

func watchInbox(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	inboxDir := cmp.Or(watchFlags.inbox, cfg.Watch.Inbox)
	listen := cmp.Or(watchFlags.listen, cfg.Watch.ListenAddress)
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return cli.NewConfigError("watch.inbox", err.Error())
	}
	if watchFlags.processed != "" {
		if err := os.MkdirAll(watchFlags.processed, 0o755); err != nil {
			return cli.NewConfigError("--processed", err.Error())
		}
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	src, err := a.stageSource(watchFlags.stages)
	if err != nil {
		return err
	}
	e, err := a.newEngine(ctx, src, nil)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}

	checker := health.New(0)
	checker.Register("stages", func(context.Context) error {
		if e.Pipeline() == nil {
			return errors.New("no stages loaded")
		}
		return nil
	})

	in := &inbox{
		engine:    e,
		logger:    a.logger,
		claims:    watchFlags.claims,
		processed: watchFlags.processed,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Recorder.Enabled {
		rec, store, closeRecorder, err := a.openRecorder()
		if err != nil {
			return err
		}
		defer closeRecorder()
		in.recorder = rec

		if p, ok := store.(interface{ Ping(context.Context) error }); ok {
			checker.Register("recorder", p.Ping)
		}

		pruner := retention.NewPruner(store, &cfg.Recorder.Retention, a.logger)
		if err := pruner.Start(gctx); err != nil {
			return cli.NewConfigError("recorder.retention.prune_schedule", err.Error())
		}
		defer pruner.Stop()
	}

	if watchFlags.reload || cfg.Stages.Watch {
		g.Go(func() error { return e.Watch(gctx, src) })
	}

	watcher, err := source.NewFileWatcher(&source.WatcherConfig{
		Path:             inboxDir,
		DebounceInterval: cfg.Watch.SettleInterval,
		SkipHidden:       true,
	}, a.logger)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}
	defer watcher.Stop()
	g.Go(func() error {
		return watcher.Watch(gctx, func(paths []string) error {
			return in.handle(gctx, paths)
		})
	})

	if listen != "" {
		mux := http.NewServeMux()
		if cfg.Telemetry.Metrics.Enabled {
			mux.Handle(cfg.Telemetry.Metrics.Path, a.telemetry.Metrics().Handler())
		}
		checker.Mount(mux)
		srv := &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("serving metrics and health", "address", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	backlog, err := existing(inboxDir)
	if err != nil {
		a.logger.Warn("failed to list inbox", "error", err)
	}
	if err := in.handle(gctx, backlog); err != nil {
		a.logger.Warn("some inbox files could not be analysed", "error", err)
	}

	stages := cmp.Or(watchFlags.stages, cfg.Stages.Path)
	if gs, ok := src.(*source.GitSource); ok {
		stages = cfg.Stages.Git.Repository
		if c, err := gs.Commit(); err == nil {
			a.logger.Info("stages loaded from git", "repository", stages, "commit", c.SHA, "dir", gs.Dir())
		}
	}
	a.logger.Info("watching inbox",
		"inbox", inboxDir,
		"stages", stages,
		"generation", e.Generation(),
	)

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("watch", err)
	}
	return nil
}
