// Package mirror is the synchronization controller. A run pulls the
// GNU ELPA archive, the Emacsmirror index and upstream org-mode, and
// pushes the resulting mirror repositories to the hosting org. Runs
// are serialised, on-disk state under the work dir is reused between
// runs.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emacs-straight/gnu-elpa-mirror/elpa"
	"github.com/emacs-straight/gnu-elpa-mirror/gitmodules"
	"github.com/emacs-straight/gnu-elpa-mirror/hosting"
	"github.com/emacs-straight/gnu-elpa-mirror/internal/lock"
	"github.com/emacs-straight/gnu-elpa-mirror/internal/retry"
	"github.com/emacs-straight/gnu-elpa-mirror/repository"
)

// Mirror runs mirror synchronization cycles. It is safe for concurrent
// use, concurrent Run calls are serialised.
type Mirror struct {
	conf    Config
	host    hosting.Host
	elpa    *elpa.Client
	retrier *retry.Policy
	log     *slog.Logger

	runLock lock.Mutex

	// remote builder, swapped out in tests
	pushRemote func(repo string) string
}

// New creates a Mirror for the given config and hosting provider.
func New(conf Config, host hosting.Host, log *slog.Logger) (*Mirror, error) {
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	m := &Mirror{
		conf:    conf,
		host:    host,
		elpa:    elpa.NewClient(conf.ELPAURL, log),
		retrier: retry.New(),
		log:     log,
	}
	m.pushRemote = func(repo string) string {
		return fmt.Sprintf("https://%s:%s@github.com/%s/%s.git",
			conf.TokenUser, conf.Token, conf.Org, repo)
	}
	return m, nil
}

// Run performs one full synchronization cycle. Per-package failures are
// logged and collected without stopping the remaining packages or
// sources. A corrupt epkgs manifest aborts the whole run, other index
// and manifest failures abort their source.
func (m *Mirror) Run(ctx context.Context, opts RunOptions) error {
	m.runLock.Lock()
	defer m.runLock.Unlock()

	meta := newCommitMeta(time.Now())
	m.log.Info("starting mirror run", "timestamp", meta.Timestamp)

	if err := os.MkdirAll(m.reposDir(), 0755); err != nil {
		return fmt.Errorf("unable to create repos dir err:%w", err)
	}

	var errs []error
	if !opts.SkipELPA {
		if err := m.mirrorELPA(ctx, opts, meta); err != nil {
			m.log.Error("GNU ELPA mirror failed", "err", err)
			errs = append(errs, fmt.Errorf("gnu elpa: %w", err))
		}
	}
	if !opts.SkipEmacsmirror {
		if err := m.mirrorEmacsmirror(ctx, meta); err != nil {
			m.log.Error("Emacsmirror mirror failed", "err", err)
			if errors.Is(err, gitmodules.ErrInvalidManifest) {
				// corrupt manifest, stop the run rather than
				// carry on with the remaining sources
				return fmt.Errorf("emacsmirror: %w", err)
			}
			errs = append(errs, fmt.Errorf("emacsmirror: %w", err))
		}
	}
	if !opts.SkipOrgMode {
		if err := m.mirrorOrgMode(ctx, meta); err != nil {
			m.log.Error("org-mode mirror failed", "err", err)
			errs = append(errs, fmt.Errorf("org-mode: %w", err))
		}
	}

	if len(errs) == 0 {
		m.log.Info("mirror run finished")
	}
	return errors.Join(errs...)
}

func (m *Mirror) reposDir() string {
	return filepath.Join(m.conf.WorkDir, "repos")
}

func (m *Mirror) repoDir(name string) string {
	return filepath.Join(m.reposDir(), name)
}

// ensureRepo creates the named repository in the hosting org if it does
// not exist yet.
func (m *Mirror) ensureRepo(ctx context.Context, name, description, homepage string) error {
	exists, err := m.host.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	m.log.Info("creating mirror repository", "repo", name)
	return m.host.Create(ctx, name, description, homepage)
}

// newClone creates a repository handle for a credentialed mirror clone.
func (m *Mirror) newClone(name, remote string) (*repository.Repo, error) {
	return repository.New(repository.Config{
		Remote:  remote,
		Dir:     m.repoDir(name),
		Private: true,
	}, m.conf.GitENVs, m.log)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
