package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emacs-straight/gnu-elpa-mirror/contents"
	"github.com/emacs-straight/gnu-elpa-mirror/gitmodules"
	"github.com/emacs-straight/gnu-elpa-mirror/repository"
)

const emacsmirrorRepo = "emacsmirror-mirror"

// mirrorEmacsmirror rebuilds the light-weight Emacsmirror index mirror:
// the epkgs submodule manifest classified into one package name per
// line under "attic" and "mirror".
func (m *Mirror) mirrorEmacsmirror(ctx context.Context, meta CommitMeta) error {
	m.log.Info("syncing Emacsmirror index", "remote", m.conf.EpkgsRemote)
	epkgs, err := repository.New(repository.Config{
		Remote: m.conf.EpkgsRemote,
		Dir:    m.repoDir("epkgs"),
	}, m.conf.GitENVs, m.log)
	if err != nil {
		return err
	}
	if err := epkgs.Sync(ctx, repository.SyncOptions{}); err != nil {
		return err
	}

	manifest, err := os.ReadFile(filepath.Join(epkgs.Directory(), ".gitmodules"))
	if err != nil {
		return fmt.Errorf("unable to read epkgs manifest err:%w", err)
	}
	index, err := gitmodules.Parse(string(manifest))
	if err != nil {
		return err
	}
	if err := index.Validate(); err != nil {
		return err
	}

	const description = "Light-weight mirror of the Emacsmirror index"
	if err := m.ensureRepo(ctx, emacsmirrorRepo, description, "https://github.com/emacsmirror/epkgs"); err != nil {
		return err
	}

	repo, err := m.newClone(emacsmirrorRepo, m.pushRemote(emacsmirrorRepo))
	if err != nil {
		return err
	}
	if err := repo.Sync(ctx, repository.SyncOptions{}); err != nil {
		return err
	}

	if err := contents.Clear(repo.Directory()); err != nil {
		return err
	}
	for file, names := range map[string][]string{
		"attic":  index.Attic,
		"mirror": index.Mirror,
	} {
		path := filepath.Join(repo.Directory(), file)
		data := strings.Join(names, "\n") + "\n"
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			return fmt.Errorf("unable to write %s err:%w", file, err)
		}
	}

	epkgsCommit, err := epkgs.Head(ctx)
	if err != nil {
		return err
	}
	meta.UpstreamCommits["Emacsmirror"] = epkgsCommit
	message := meta.Message("Update Emacsmirror mirror")
	if _, err := repo.CommitAll(ctx, message, repository.DefaultCommitter); err != nil {
		return err
	}

	branch, err := repo.Push(ctx)
	if err != nil {
		return err
	}
	if err := m.host.SetDefaultBranch(ctx, emacsmirrorRepo, branch); err != nil {
		return err
	}
	return m.host.SetDescription(ctx, emacsmirrorRepo, description)
}
