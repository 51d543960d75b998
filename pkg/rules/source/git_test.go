package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/triage/pkg/config"
)

// stageRepo is an origin repository holding the example stages under
// stages/.
type stageRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newStageRepo(t *testing.T) *stageRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() failed: %v", err)
	}
	r := &stageRepo{t: t, dir: dir, repo: repo}

	entries, err := os.ReadDir(examplesDir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(examplesDir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		r.write("stages/"+e.Name(), data)
	}
	r.commit("initial stages")
	return r
}

func (r *stageRepo) write(name string, data []byte) {
	r.t.Helper()
	path := filepath.Join(r.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.t.Fatal(err)
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		r.t.Fatalf("Add(%s) failed: %v", name, err)
	}
}

func (r *stageRepo) commit(msg string) string {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatal(err)
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Stage Author", Email: "stages@example.com", When: time.Now()},
	})
	if err != nil {
		r.t.Fatalf("Commit() failed: %v", err)
	}
	return hash.String()
}

func gitConfig(t *testing.T, origin string) *config.GitStagesConfig {
	return &config.GitStagesConfig{
		Repository:   origin,
		Branch:       "master",
		Path:         "stages",
		LocalPath:    filepath.Join(t.TempDir(), "clone"),
		PollInterval: 20 * time.Millisecond,
		Timeout:      10 * time.Second,
		Auth:         config.GitAuthConfig{Type: "none"},
	}
}

func TestNewGitSource(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.GitStagesConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*config.GitStagesConfig) {}},
		{name: "token", mutate: func(c *config.GitStagesConfig) { c.Auth = config.GitAuthConfig{Type: "token", Token: "t0k3n"} }},
		{name: "empty repository", mutate: func(c *config.GitStagesConfig) { c.Repository = "" }, wantErr: true},
		{name: "empty branch", mutate: func(c *config.GitStagesConfig) { c.Branch = "" }, wantErr: true},
		{name: "empty local path", mutate: func(c *config.GitStagesConfig) { c.LocalPath = "" }, wantErr: true},
		{name: "token missing", mutate: func(c *config.GitStagesConfig) { c.Auth.Type = "token" }, wantErr: true},
		{name: "ssh key missing", mutate: func(c *config.GitStagesConfig) {
			c.Auth = config.GitAuthConfig{Type: "ssh", SSHKeyPath: filepath.Join(t.TempDir(), "id_ed25519")}
		}, wantErr: true},
		{name: "unknown auth", mutate: func(c *config.GitStagesConfig) { c.Auth.Type = "kerberos" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := gitConfig(t, "https://example.com/stages.git")
			tt.mutate(cfg)
			_, err := NewGitSource(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGitSource() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGitSource_SSHKeyPermissions(t *testing.T) {
	key := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(key, []byte("not a key"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := gitConfig(t, "git@example.com:stages.git")
	cfg.Auth = config.GitAuthConfig{Type: "ssh", SSHKeyPath: key}

	if _, err := NewGitSource(cfg, nil); err == nil {
		t.Error("NewGitSource() accepted a world-readable key")
	}
}

func TestGitSource_Load(t *testing.T) {
	origin := newStageRepo(t)
	head, err := origin.repo.Head()
	if err != nil {
		t.Fatal(err)
	}

	cfg := gitConfig(t, origin.dir)
	src, err := NewGitSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewGitSource() failed: %v", err)
	}

	pipeline, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(pipeline.Stages) != 4 {
		t.Errorf("loaded %d stages, want 4", len(pipeline.Stages))
	}

	commit, err := src.Commit()
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if commit.SHA != head.Hash().String() || commit.Message != "initial stages" {
		t.Errorf("Commit() = %+v, want %s", commit, head.Hash())
	}

	// A second source over the same clone opens it instead of cloning.
	reopened, err := NewGitSource(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reopened.Load(context.Background()); err != nil {
		t.Errorf("Load() over an existing clone failed: %v", err)
	}
}

func TestGitSource_LoadMissingRepository(t *testing.T) {
	src, err := NewGitSource(gitConfig(t, filepath.Join(t.TempDir(), "absent")), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("Load() succeeded without a repository")
	}
	if _, err := src.Commit(); err == nil {
		t.Error("Commit() succeeded before a clone")
	}
}

func TestGitSource_Watch(t *testing.T) {
	origin := newStageRepo(t)
	src, err := NewGitSource(gitConfig(t, origin.dir), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := src.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(examplesDir, "10-ingest.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	origin.write("stages/10-ingest.yaml", append(data, []byte("\n# touched\n")...))
	origin.commit("touch ingest")

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("reload failed: %v", ev.Err)
		}
		if len(ev.Pipeline.Stages) != 4 {
			t.Errorf("reloaded %d stages, want 4", len(ev.Pipeline.Stages))
		}
		if len(ev.Paths) != 1 || ev.Paths[0] != "stages/10-ingest.yaml" {
			t.Errorf("changed paths = %v", ev.Paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event after a commit")
	}

	origin.write("stages/50-broken.yaml", []byte("name: broken\norder: 50\n"))
	origin.commit("add broken stage")

	select {
	case ev := <-events:
		if ev.Err == nil {
			t.Error("reload of a broken stage succeeded")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event after a broken commit")
	}

	cancel()
	for range events {
	}
}
