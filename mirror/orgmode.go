package mirror

import (
	"context"
	"fmt"

	"github.com/emacs-straight/gnu-elpa-mirror/repository"
)

const orgModeRepo = "org-mode"

// mirrorOrgMode relays upstream org-mode into the hosted mirror through
// a single bare clone, no working tree is ever materialised.
func (m *Mirror) mirrorOrgMode(ctx context.Context, meta CommitMeta) error {
	dir := m.repoDir(orgModeRepo)

	pull, err := repository.New(repository.Config{
		Remote: m.conf.OrgModeRemote,
		Dir:    dir,
		Bare:   true,
	}, m.conf.GitENVs, m.log)
	if err != nil {
		return err
	}
	m.log.Info("syncing org-mode", "remote", m.conf.OrgModeRemote)
	if err := m.retrier.Do(ctx, m.log, "sync org-mode", func(ctx context.Context) error {
		return pull.Sync(ctx, repository.SyncOptions{})
	}); err != nil {
		return err
	}

	if err := m.ensureRepo(ctx, orgModeRepo, "Mirror of org-mode from Savannah", m.conf.OrgModeRemote); err != nil {
		return err
	}

	push, err := repository.New(repository.Config{
		Remote:  m.pushRemote(orgModeRepo),
		Dir:     dir,
		Bare:    true,
		Private: true,
	}, m.conf.GitENVs, m.log)
	if err != nil {
		return err
	}
	branch, err := push.Push(ctx)
	if err != nil {
		return err
	}
	if err := m.host.SetDefaultBranch(ctx, orgModeRepo, branch); err != nil {
		return err
	}

	description := fmt.Sprintf("Mirror of org-mode from Savannah, current as of %s", meta.Date())
	return m.host.SetDescription(ctx, orgModeRepo, description)
}
