// Package contents makes a repository's working tree byte-identical to a
// source directory while leaving the version-control metadata directory
// untouched.
package contents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"
)

const gitDir = ".git"

// Replace wipes the repository's tracked contents and copies the source
// directory's contents in. The .git directory survives untouched, the
// resulting tree (excluding .git) is byte-identical to srcDir.
func Replace(repoDir, srcDir string) error {
	if err := Clear(repoDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("unable to list source dir err:%w", err)
	}

	opt := cp.Options{OnSymlink: symlinkPolicy(srcDir)}

	// ReadDir returns entries in lexicographic order
	for _, entry := range entries {
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(repoDir, entry.Name())
		if err := cp.Copy(src, dst, opt); err != nil {
			return fmt.Errorf("unable to copy %q err:%w", entry.Name(), err)
		}
	}
	return nil
}

// Clear removes every top-level entry of the repository except the
// version-control metadata directory. Directories are removed
// recursively; a file disappearing between listing and removal is
// tolerated.
func Clear(repoDir string) error {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		return fmt.Errorf("unable to list repo dir err:%w", err)
	}

	for _, entry := range entries {
		if entry.Name() == gitDir {
			continue
		}
		p := filepath.Join(repoDir, entry.Name())
		if entry.IsDir() {
			if err := os.RemoveAll(p); err != nil {
				return fmt.Errorf("unable to remove dir %q err:%w", entry.Name(), err)
			}
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("unable to remove file %q err:%w", entry.Name(), err)
		}
	}
	return nil
}

// PromoteSubdir moves the contents of a nested directory up to the
// repository root and removes the emptied directory. Used for packages
// whose canonical sources unpack into a single versioned sub-directory.
func PromoteSubdir(repoDir, name string) error {
	nested := filepath.Join(repoDir, name)

	entries, err := os.ReadDir(nested)
	if err != nil {
		return fmt.Errorf("unable to list nested dir %q err:%w", name, err)
	}

	for _, entry := range entries {
		oldPath := filepath.Join(nested, entry.Name())
		newPath := filepath.Join(repoDir, entry.Name())
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("unable to move %q err:%w", entry.Name(), err)
		}
	}

	if err := os.Remove(nested); err != nil {
		return fmt.Errorf("unable to remove emptied dir %q err:%w", name, err)
	}
	return nil
}

// symlinkPolicy preserves symlinks only when the target resolves inside
// the source tree. Links escaping the source are dereferenced and copied
// by content so host filesystem paths never leak into a mirror.
func symlinkPolicy(srcRoot string) func(string) cp.SymlinkAction {
	return func(link string) cp.SymlinkAction {
		target, err := os.Readlink(link)
		if err != nil {
			return cp.Deep
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(link), target)
		}
		if insideDir(target, srcRoot) {
			return cp.Shallow
		}
		return cp.Deep
	}
}

func insideDir(path, root string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
