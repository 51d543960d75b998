package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mercator-hq/triage/pkg/rules/compiler"
	"mercator-hq/triage/pkg/rules/parser"
)

// FileSource loads stages from YAML files on disk.
type FileSource struct {
	path     string
	logger   *slog.Logger
	parser   *parser.Parser
	compiler *compiler.Compiler
	watchCfg *WatcherConfig
}

// NewFileSource creates a new file-based stage source.
// The path can be either a single file or a directory.
// If it's a directory, all .yaml and .yml files directly inside it are loaded.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultWatcherConfig()
	cfg.Path = path
	return &FileSource{
		path:     path,
		logger:   logger,
		parser:   parser.NewParser(),
		compiler: compiler.NewCompiler(),
		watchCfg: cfg,
	}
}

// WithWatcherConfig overrides the watcher settings used by Watch.
// The watched path always stays the source path.
func (s *FileSource) WithWatcherConfig(cfg *WatcherConfig) *FileSource {
	c := *cfg
	c.Path = s.path
	s.watchCfg = &c
	return s
}

// Paths returns the stage files the source would load, sorted by name.
func (s *FileSource) Paths() ([]string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", s.path, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(s.path, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load parses and compiles every stage file. An invalid file fails the
// whole load; no stage is ever skipped.
func (s *FileSource) Load(ctx context.Context) (*compiler.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := s.Paths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no stage files found in %q", s.path)
	}

	stages, err := s.parser.ParseAll(paths)
	if err != nil {
		return nil, err
	}

	pipeline, err := s.compiler.Compile(stages)
	if err != nil {
		return nil, err
	}

	s.logger.Info("loaded stages from source",
		"path", s.path,
		"stage_count", len(pipeline.Stages),
		"stages", strings.Join(pipeline.Names(), ","),
	)
	return pipeline, nil
}

// Watch recompiles the pipeline whenever a stage file changes.
// Changes are debounced so an editor save produces a single reload.
func (s *FileSource) Watch(ctx context.Context) (<-chan ReloadEvent, error) {
	watcher, err := NewFileWatcher(s.watchCfg, s.logger)
	if err != nil {
		return nil, err
	}

	events := make(chan ReloadEvent)
	done := make(chan struct{})
	var mu sync.Mutex

	// send may be called from the debounce timer after Watch returned.
	send := func(ev ReloadEvent) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-done:
			return
		default:
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		case <-done:
		}
	}

	go func() {
		err := watcher.Watch(ctx, func(paths []string) error {
			pipeline, loadErr := s.Load(ctx)
			send(ReloadEvent{Pipeline: pipeline, Paths: paths, Err: loadErr})
			return loadErr
		})
		if err != nil {
			s.logger.Error("stage watcher stopped", "path", s.path, "error", err)
		}

		close(done)
		if stopErr := watcher.Stop(); stopErr != nil {
			s.logger.Warn("failed to stop stage watcher", "error", stopErr)
		}
		mu.Lock()
		close(events)
		mu.Unlock()
	}()

	return events, nil
}
