package repository

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// DefaultCommitter is the bot identity attached to every mirror commit.
var DefaultCommitter = Committer{
	Name:  "GNU ELPA Mirror Bot",
	Email: "contact+gnu-elpa-mirror@radian.codes",
}

// CommitAll stages every change in the working tree, including paths
// normally covered by ignore rules, and commits them with the given
// message if the staged tree differs from HEAD. It returns whether a
// commit was created.
//
// --force staging is required because some upstream packages
// intentionally ship files listed in their own .gitignore and those must
// still be mirrored.
func (r *Repo) CommitAll(ctx context.Context, message string, ident Committer) (bool, error) {
	if r.bare {
		return false, fmt.Errorf("cannot commit in a bare clone")
	}
	if ident.Name == "" {
		ident = DefaultCommitter
	}

	// git add --all --force
	if _, err := r.git(ctx, "add", "--all", "--force"); err != nil {
		return false, fmt.Errorf("unable to stage changes err:%w", err)
	}

	staged, err := r.hasStagedChanges(ctx)
	if err != nil {
		return false, err
	}
	if !staged {
		// re-running against unchanged upstream content produces
		// zero new commits
		r.log.Info("no changes")
		return false, nil
	}

	// git -c user.name=<name> -c user.email=<email> commit -m <message>
	if _, err := r.git(ctx,
		"-c", "user.name="+ident.Name,
		"-c", "user.email="+ident.Email,
		"commit", "-m", message,
	); err != nil {
		return false, fmt.Errorf("unable to commit staged changes err:%w", err)
	}
	return true, nil
}

// hasStagedChanges compares the staged tree against HEAD.
func (r *Repo) hasStagedChanges(ctx context.Context) (bool, error) {
	// git diff --cached --quiet
	// exits 0 when the index matches HEAD and 1 when it differs
	_, err := r.git(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("unable to compare staged tree err:%w", err)
}
