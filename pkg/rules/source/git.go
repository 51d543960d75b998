package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/rules/compiler"
)

// Commit identifies the revision a GitSource compiled.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// GitSource loads stages from a directory inside a git repository. The
// repository is cloned on the first Load; Watch pulls it on an interval and
// recompiles when HEAD moves.
type GitSource struct {
	config *config.GitStagesConfig
	auth   transport.AuthMethod
	logger *slog.Logger
	files  *FileSource

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewGitSource validates cfg and prepares a source. Nothing is fetched
// until Load.
func NewGitSource(cfg *config.GitStagesConfig, logger *slog.Logger) (*GitSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("git config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("local path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := gitAuth(&cfg.Auth)
	if err != nil {
		return nil, err
	}

	return &GitSource{
		config: cfg,
		auth:   auth,
		logger: logger,
		files:  NewFileSource(filepath.Join(cfg.LocalPath, cfg.Path), logger),
	}, nil
}

// gitAuth builds the transport credentials for cfg.
func gitAuth(cfg *config.GitAuthConfig) (transport.AuthMethod, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires non-empty token")
		}
		// Hosts ignore the username for token auth.
		return &http.BasicAuth{Username: "git", Password: cfg.Token}, nil
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires ssh_key_path")
		}
		info, err := os.Stat(cfg.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to access SSH key file: %w", err)
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
		}
		auth, err := ssh.NewPublicKeysFromFile("git", cfg.SSHKeyPath, cfg.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return auth, nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
	}
}

// Dir is the stage directory inside the local clone.
func (s *GitSource) Dir() string {
	return s.files.path
}

// Load clones the repository if needed and compiles its stage directory.
func (s *GitSource) Load(ctx context.Context) (*compiler.Pipeline, error) {
	if err := s.clone(ctx); err != nil {
		return nil, err
	}
	return s.files.Load(ctx)
}

// clone opens an existing clone at LocalPath or clones the repository.
func (s *GitSource) clone(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		return nil
	}

	if _, err := os.Stat(filepath.Join(s.config.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.config.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing clone: %w", err)
		}
		s.repo = repo
		s.logger.Info("opened stage repository", "path", s.config.LocalPath)
		return nil
	}

	if err := os.MkdirAll(s.config.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.config.LocalPath, false, &gogit.CloneOptions{
		URL:           s.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Depth:         s.config.Depth,
		Auth:          s.auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", s.config.Repository, err)
	}
	s.repo = repo
	s.logger.Info("cloned stage repository",
		"repository", s.config.Repository,
		"branch", s.config.Branch,
		"path", s.config.LocalPath,
	)
	return nil
}

// pull fetches the tracked branch. It reports the files that changed
// between the old and new HEAD, or nil when HEAD did not move.
func (s *GitSource) pull(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, fmt.Errorf("repository not cloned")
	}

	before, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	worktree, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	after, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	if after.Hash() == before.Hash() {
		return nil, nil
	}
	return s.changedFiles(before.Hash(), after.Hash())
}

func (s *GitSource) changedFiles(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := s.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", from, err)
	}
	toCommit, err := s.repo.CommitObject(to)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", to, err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// Commit returns the HEAD commit of the local clone.
func (s *GitSource) Commit() (*Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, fmt.Errorf("repository not cloned")
	}
	ref, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	c, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return &Commit{
		SHA:       c.Hash.String(),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
		Message:   c.Message,
	}, nil
}

// Watch pulls the repository every PollInterval and sends a ReloadEvent
// when HEAD moves. Pull failures are logged and retried on the next tick.
func (s *GitSource) Watch(ctx context.Context) (<-chan ReloadEvent, error) {
	if err := s.clone(ctx); err != nil {
		return nil, err
	}

	events := make(chan ReloadEvent)
	go func() {
		defer close(events)

		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changed, err := s.pull(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("stage repository pull failed", "repository", s.config.Repository, "error", err)
				continue
			}
			if changed == nil {
				continue
			}

			s.logger.Info("stage repository changed", "files", len(changed))
			pipeline, loadErr := s.files.Load(ctx)
			select {
			case events <- ReloadEvent{Pipeline: pipeline, Paths: changed, Err: loadErr}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
