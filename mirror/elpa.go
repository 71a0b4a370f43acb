package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emacs-straight/gnu-elpa-mirror/contents"
	"github.com/emacs-straight/gnu-elpa-mirror/elpa"
	"github.com/emacs-straight/gnu-elpa-mirror/internal/utils"
	"github.com/emacs-straight/gnu-elpa-mirror/repository"
)

const (
	mirrorListRepo = "gnu-elpa-mirror"

	prTemplateNote = ":warning: This repo is a read-only mirror. Please submit changes upstream instead :warning:\n"
)

// mirrorELPA mirrors every package of the archive index and then
// rebuilds the mirror list repository. The index always covers all
// packages, OnlyPackage narrows the per-package work only.
func (m *Mirror) mirrorELPA(ctx context.Context, opts RunOptions, meta CommitMeta) error {
	m.log.Info("checking archive index", "url", m.elpa.ArchiveURL())
	index, err := m.elpa.FetchIndex(ctx)
	if err != nil {
		return err
	}

	var pkgs []elpa.Package
	for _, pkg := range index {
		if opts.wantPackage(pkg.Name) {
			pkgs = append(pkgs, pkg)
		}
	}

	m.log.Info("downloading archive tarballs", "count", len(pkgs))
	if err := m.elpa.DownloadTarballs(ctx, m.tarballDir(), pkgs); err != nil {
		return err
	}

	var errs []error
	for _, pkg := range pkgs {
		start := time.Now()
		err := m.mirrorPackage(ctx, opts, meta, pkg)
		recordPackageSync(pkg.Name, err == nil)
		updateSyncLatency(pkg.Name, start)
		if err != nil {
			m.log.Error("unable to mirror package", "package", pkg.Name, "err", err)
			errs = append(errs, fmt.Errorf("package %s: %w", pkg.Name, err))
		}
	}

	if !opts.SkipIndex {
		if err := m.updateMirrorList(ctx, meta, index); err != nil {
			m.log.Error("unable to update mirror list", "err", err)
			errs = append(errs, fmt.Errorf("mirror list: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) tarballDir() string {
	return filepath.Join(m.conf.WorkDir, "gnu-elpa")
}

// mirrorPackage brings one mirror repository up to date with the
// downloaded archive tarball and pushes the result.
func (m *Mirror) mirrorPackage(ctx context.Context, opts RunOptions, meta CommitMeta, pkg elpa.Package) error {
	repoName := pkg.RepoName()
	if err := m.ensureRepo(ctx, repoName,
		fmt.Sprintf("Mirror of the %s package from GNU ELPA", pkg.Name),
		fmt.Sprintf("https://elpa.gnu.org/packages/%s.html", pkg.Name),
	); err != nil {
		return err
	}

	repo, err := m.newClone(pkg.Name, m.pushRemote(repoName))
	if err != nil {
		return err
	}

	if !(opts.SkipPulls && dirExists(repo.Directory())) {
		m.log.Debug("syncing mirror repository", "package", pkg.Name)
		if err := repo.Sync(ctx, repository.SyncOptions{}); err != nil {
			return err
		}
	}

	if err := m.extractTarball(ctx, pkg, repo.Directory()); err != nil {
		return err
	}
	if err := scrubHostMetadata(repo.Directory()); err != nil {
		return err
	}

	if _, err := repo.CommitAll(ctx, meta.PackageMessage(pkg, m.elpa.ArchiveURL()), repository.DefaultCommitter); err != nil {
		return err
	}

	if opts.SkipPushes {
		return nil
	}

	if err := m.retrier.Do(ctx, m.log, "push "+pkg.Name, func(ctx context.Context) error {
		branch, err := repo.Push(ctx)
		if err != nil {
			return err
		}
		return m.host.SetDefaultBranch(ctx, repoName, branch)
	}); err != nil {
		return err
	}

	description := fmt.Sprintf("Mirror of the %s package from GNU ELPA, current as of %s",
		pkg.Name, meta.Date())
	return m.retrier.Do(ctx, m.log, "describe "+pkg.Name, func(ctx context.Context) error {
		return m.host.SetDescription(ctx, repoName, description)
	})
}

// extractTarball unpacks the package tarball into a staging area and
// replaces the repository contents with it. Tarballs unpack into a
// single name-version directory which is promoted to the root.
func (m *Mirror) extractTarball(ctx context.Context, pkg elpa.Package, repoDir string) error {
	staging := filepath.Join(m.conf.WorkDir, "staging", pkg.Name)
	if err := utils.ReCreate(staging); err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	tarball := filepath.Join(m.tarballDir(), pkg.TarballName())
	if _, err := utils.RunCommand(ctx, m.log, m.conf.GitENVs, m.conf.WorkDir,
		"tar", "-C", staging, "-xf", tarball); err != nil {
		return fmt.Errorf("unable to extract %s err:%w", pkg.TarballName(), err)
	}

	if err := contents.Replace(repoDir, staging); err != nil {
		return err
	}
	return contents.PromoteSubdir(repoDir, pkg.Name+"-"+pkg.Version)
}

// scrubHostMetadata drops upstream .github configuration so the host
// never interprets a mirror specially, and leaves a template telling
// people not to open pull requests against it.
func scrubHostMetadata(repoDir string) error {
	githubDir := filepath.Join(repoDir, ".github")
	if err := os.RemoveAll(githubDir); err != nil {
		return fmt.Errorf("unable to remove .github err:%w", err)
	}
	if err := os.Mkdir(githubDir, 0755); err != nil {
		return fmt.Errorf("unable to create .github err:%w", err)
	}
	template := filepath.Join(githubDir, "PULL_REQUEST_TEMPLATE.md")
	if err := os.WriteFile(template, []byte(prTemplateNote), 0644); err != nil {
		return fmt.Errorf("unable to write pull request template err:%w", err)
	}
	return nil
}

// updateMirrorList rebuilds the repository listing every mirrored
// package as one empty file per package name.
func (m *Mirror) updateMirrorList(ctx context.Context, meta CommitMeta, index []elpa.Package) error {
	const description = "List packages mirrored from GNU ELPA"
	if err := m.ensureRepo(ctx, mirrorListRepo, description, "https://elpa.gnu.org/packages/"); err != nil {
		return err
	}

	repo, err := m.newClone(mirrorListRepo, m.pushRemote(mirrorListRepo))
	if err != nil {
		return err
	}
	if err := repo.Sync(ctx, repository.SyncOptions{}); err != nil {
		return err
	}

	if err := contents.Clear(repo.Directory()); err != nil {
		return err
	}
	for _, pkg := range index {
		if err := os.WriteFile(filepath.Join(repo.Directory(), pkg.Name), nil, 0644); err != nil {
			return fmt.Errorf("unable to write list entry %s err:%w", pkg.Name, err)
		}
	}

	if _, err := repo.CommitAll(ctx, meta.Message("Update mirror list"), repository.DefaultCommitter); err != nil {
		return err
	}

	branch, err := repo.Push(ctx)
	if err != nil {
		return err
	}
	if err := m.host.SetDefaultBranch(ctx, mirrorListRepo, branch); err != nil {
		return err
	}
	return m.host.SetDescription(ctx, mirrorListRepo, description)
}
