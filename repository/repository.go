package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/emacs-straight/gnu-elpa-mirror/internal/utils"
)

// refs synchronised on every pull and push: all branches, all tags and
// the change-ref namespace some upstreams publish next to them
var mirrorRefspecs = []string{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
	"+refs/change/*:refs/change/*",
}

// ErrEmptyRemote indicates the remote exists but has no refs at all
// (a new repository). It is a success signal, not a failure.
var ErrEmptyRemote = errors.New("remote repository has no refs")

var gitExecutablePath string

func init() {
	gitExecutablePath = exec.Command("git").String()
}

// Repo represents the local clone of a single remote.
type Repo struct {
	remote  string // remote URL, may embed credentials
	dir     string // absolute path to the clone directory
	bare    bool
	private bool
	envs    []string
	log     *slog.Logger
}

// New creates a repo handle from the given config. Nothing is touched on
// disk until Sync is called.
func New(conf Config, envs []string, log *slog.Logger) (*Repo, error) {
	if conf.Remote == "" {
		return nil, fmt.Errorf("remote url must be provided")
	}
	if !filepath.IsAbs(conf.Dir) {
		return nil, fmt.Errorf("repository dir '%s' must be absolute", conf.Dir)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Repo{
		remote:  conf.Remote,
		dir:     conf.Dir,
		bare:    conf.Bare,
		private: conf.Private,
		envs:    envs,
		log:     log.With("repo", filepath.Base(conf.Dir)),
	}, nil
}

// Directory returns the local clone directory of the repo.
func (r *Repo) Directory() string { return r.dir }

// Sync brings the local clone into a state mirroring the remote's full
// ref set: init if needed, forced fetch with pruning, then for non-bare
// clones a forced checkout and clean of the remote's default branch.
// A remote with no refs at all is treated as success with no further
// action.
func (r *Repo) Sync(ctx context.Context, opts SyncOptions) error {
	if err := r.init(ctx); err != nil {
		return r.redact("initialising repository", err)
	}

	if err := r.fetch(ctx, opts.ExtraRefspecs); err != nil {
		return r.redact("fetching repository", err)
	}

	headRef, err := r.remoteHead(ctx)
	if errors.Is(err, ErrEmptyRemote) {
		// new/empty upstream, nothing to check out
		r.log.Info("remote has no refs yet, skipping checkout")
		return nil
	}
	if err != nil {
		return r.redact("determining remote HEAD", err)
	}

	if r.bare {
		// git symbolic-ref HEAD <headRef>
		if _, err := r.git(ctx, "symbolic-ref", "HEAD", headRef); err != nil {
			return r.redact("setting local HEAD", err)
		}
		return nil
	}

	// the advertised default branch may be unborn on a brand new remote,
	// in which case nothing was fetched and there is nothing to check out
	// git rev-parse --verify --quiet <headRef>
	if _, err := r.git(ctx, "rev-parse", "--verify", "--quiet", headRef); err != nil {
		r.log.Info("remote default branch has no commits yet, skipping checkout", "ref", headRef)
		return nil
	}

	if err := r.checkout(ctx, headRef); err != nil {
		return r.redact("checking out default branch", err)
	}

	if err := r.clean(ctx, opts.ExcludePatterns); err != nil {
		return r.redact("cleaning working tree", err)
	}

	if opts.Recursive {
		// git submodule update --init --recursive --checkout --force
		if _, err := r.git(ctx, "submodule", "update", "--init", "--recursive", "--checkout", "--force"); err != nil {
			return r.redact("updating submodules", err)
		}
	}

	return nil
}

// Push force-pushes all branches, tags and change refs to the remote,
// pruning remote refs no longer present locally. On success it returns
// the local default branch (short name) so the caller can apply it as
// the hosted repository's default branch. Push failures are always
// redacted, push targets carry credentials.
func (r *Repo) Push(ctx context.Context) (string, error) {
	args := append([]string{"push", "--prune", "--force", r.remote}, mirrorRefspecs...)
	// git push --prune --force <remote> +refs/heads/*:refs/heads/* ...
	if _, err := r.git(ctx, args...); err != nil {
		return "", r.forceRedact("pushing repository", err)
	}

	// git symbolic-ref HEAD
	head, err := r.git(ctx, "symbolic-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("unable to read local default branch err:%w", err)
	}
	return strings.TrimPrefix(head, "refs/heads/"), nil
}

// Head returns the commit hash the clone's HEAD currently points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	// git rev-parse HEAD
	return r.git(ctx, "rev-parse", "HEAD")
}

// init creates the git database if the clone directory doesn't have one.
func (r *Repo) init(ctx context.Context) error {
	if ok, err := r.hasGitDB(ctx); err != nil {
		return err
	} else if ok {
		return nil
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("unable to create repo dir err:%w", err)
	}

	args := []string{"init", "-q"}
	if r.bare {
		args = append(args, "--bare")
	}
	// git init -q [--bare]
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("unable to init repo err:%w", err)
	}
	return nil
}

// hasGitDB reports whether dir already contains a usable git database.
func (r *Repo) hasGitDB(ctx context.Context) (bool, error) {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("unable to verify repo dir err:%w", err)
	}

	if empty, err := utils.DirIsEmpty(r.dir); err != nil {
		return false, err
	} else if empty {
		return false, nil
	}

	// git rev-parse --git-dir
	// errors here mean "not a repository", which is a valid state for a
	// directory we are about to initialise
	if _, err := r.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *Repo) fetch(ctx context.Context, extraRefspecs []string) error {
	args := []string{"fetch", "--prune", "--force", "--update-head-ok", r.remote}
	args = append(args, mirrorRefspecs...)
	args = append(args, extraRefspecs...)
	// git fetch --prune --force --update-head-ok <remote> <refspecs>
	_, err := r.git(ctx, args...)
	return err
}

// remoteHead queries the remote's default branch via a symbolic-ref
// lookup. Empty ls-remote output means an empty remote, not malformed
// output.
func (r *Repo) remoteHead(ctx context.Context) (string, error) {
	// git ls-remote --symref <remote> HEAD
	out, err := r.git(ctx, "ls-remote", "--symref", r.remote, "HEAD")
	if err != nil {
		return "", fmt.Errorf("unable to query remote HEAD err:%w", err)
	}
	return parseRemoteHead(out)
}

func (r *Repo) checkout(ctx context.Context, headRef string) error {
	branch := strings.TrimPrefix(headRef, "refs/heads/")
	// git checkout -B <branch> <headRef> --force
	_, err := r.git(ctx, "checkout", "-B", branch, headRef, "--force")
	return err
}

func (r *Repo) clean(ctx context.Context, excludePatterns []string) error {
	args := []string{"clean", "-ffdx"}
	for _, pat := range excludePatterns {
		args = append(args, "--exclude="+pat)
	}
	// git clean -ffdx [--exclude=<pat>...]
	_, err := r.git(ctx, args...)
	return err
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return utils.RunCommand(ctx, r.log, r.envs, r.dir, gitExecutablePath, args...)
}

// redact hides failure details of private remotes, otherwise the
// underlying failure propagates unmodified for caller-level retries.
func (r *Repo) redact(op string, err error) error {
	if err == nil {
		return nil
	}
	if r.private {
		return r.forceRedact(op, err)
	}
	return err
}

// forceRedact always replaces the failure with a generic message so a
// credential-bearing URL can never leak into diagnostics.
func (r *Repo) forceRedact(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %q failed (details omitted for security)", op, filepath.Base(r.dir))
}
