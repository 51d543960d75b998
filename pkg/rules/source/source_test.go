package source

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/parser"
)

const examplesDir = "../../../examples/stages"

func copyExamples(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(examplesDir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(examplesDir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile() failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
	}
	return dir
}

func TestFileSource_Load(t *testing.T) {
	src := NewFileSource(examplesDir, nil)
	pipeline, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := []string{"ingest", "pdf_analysis", "archive_analysis", "verdict"}
	if diff := cmp.Diff(want, pipeline.Names()); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSource_Load_InvalidFileFailsWholeLoad(t *testing.T) {
	dir := copyExamples(t)
	if err := os.WriteFile(filepath.Join(dir, "50-broken.yaml"), []byte("name: broken\norder: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileSource(dir, nil).Load(context.Background()); err == nil {
		t.Fatal("Load() succeeded with an unbounded stage in the directory")
	}
}

func TestFileSource_Paths_SkipsNonStageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", ".hidden.yaml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := NewFileSource(dir, nil).Paths()
	if err != nil {
		t.Fatalf("Paths() failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSource_Watch(t *testing.T) {
	dir := copyExamples(t)
	cfg := DefaultWatcherConfig()
	cfg.DebounceInterval = 20 * time.Millisecond
	src := NewFileSource(dir, nil).WithWatcherConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "10-ingest.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, append(data, []byte("\n# touched\n")...), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("reload failed: %v", ev.Err)
		}
		if len(ev.Pipeline.Stages) != 4 {
			t.Errorf("reloaded %d stages, want 4", len(ev.Pipeline.Stages))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event after modifying a stage file")
	}

	cancel()
	for range events {
	}
}

func TestMemorySource_SetStagesNotifiesWatchers(t *testing.T) {
	p := parser.NewParser()
	var stages []*ast.Stage
	for _, name := range []string{"10-ingest.yaml", "90-verdict.yaml"} {
		stage, err := p.Parse(filepath.Join(examplesDir, name))
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", name, err)
		}
		stages = append(stages, stage)
	}
	// The example verdict stage reads pdf/archive namespaces; drop them.
	stages[1].Sources = []string{"ingest"}
	stages[1].Dispatch = nil
	stages[1].Rules = slices.DeleteFunc(stages[1].Rules, func(r *ast.Rule) bool {
		return r.Name == "auto-executing-active-content"
	})

	src := NewMemorySource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	src.SetStages(stages...)

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("reload failed: %v", ev.Err)
		}
		if diff := cmp.Diff([]string{"ingest", "verdict"}, ev.Pipeline.Names()); diff != "" {
			t.Errorf("stages mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatal("SetStages did not notify the watcher")
	}

	cancel()
	for range events {
	}
}

func TestDebouncer_CoalescesPaths(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	var calls [][]string
	fired := make(chan struct{}, 4)
	record := func(paths []string) {
		mu.Lock()
		calls = append(calls, paths)
		mu.Unlock()
		fired <- struct{}{}
	}

	d.Trigger("b.yaml", record)
	d.Trigger("a.yaml", record)
	d.Trigger("b.yaml", record)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([][]string{{"a.yaml", "b.yaml"}}, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}
