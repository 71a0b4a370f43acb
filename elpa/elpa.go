// Package elpa enumerates packages published by an ELPA package archive.
// The archive index is consumed read-only, versions are opaque strings
// used only to name tarballs.
package elpa

import (
	"fmt"
	"strconv"
	"strings"
)

// Denylist of special names to make sure there is nothing unrelated that
// gets accidentally overwritten by somebody publishing a naughty package
// on the archive.
var deniedNames = map[string]bool{
	"gnu-elpa-mirror":    true,
	"epkgs":              true,
	"emacsmirror-mirror": true,
	"org-mode":           true,
	"elpa":               true,
}

// Package is a single entry of the archive index.
type Package struct {
	Name    string
	Version string
}

// TarballName returns the source artifact file name for the package.
func (p Package) TarballName() string {
	return fmt.Sprintf("%s-%s.tar", p.Name, p.Version)
}

// TarballURL returns the download URL of the source artifact.
func (p Package) TarballURL(archiveURL string) string {
	return strings.TrimRight(archiveURL, "/") + "/" + p.TarballName()
}

// RepoName maps the package name to a hosted repository name.
// '+' is not allowed in repository names.
func (p Package) RepoName() string {
	return strings.ReplaceAll(p.Name, "+", "-plus")
}

// ParseIndex parses an archive-contents index into the package list, in
// index order, with denylisted names filtered out.
func ParseIndex(data string) ([]Package, error) {
	v, err := readSexp(data)
	if err != nil {
		return nil, err
	}

	top, ok := v.(*cell)
	if !ok || top.tail != nil {
		return nil, fmt.Errorf("archive index is not a list")
	}

	var pkgs []Package
	for i, item := range top.items {
		// the leading element is the archive format version
		if i == 0 {
			if _, ok := item.(int64); ok {
				continue
			}
		}

		entry, ok := item.(*cell)
		if !ok || len(entry.items) == 0 {
			// plain atoms between entries are tolerated, same as the
			// original index consumer which kept only list entries
			continue
		}

		name, ok := entry.items[0].(symbol)
		if !ok {
			return nil, fmt.Errorf("archive index entry %d has no package name", i)
		}

		version, err := entryVersion(entry)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", name, err)
		}

		if deniedNames[string(name)] {
			continue
		}
		pkgs = append(pkgs, Package{Name: string(name), Version: version})
	}
	return pkgs, nil
}

// entryVersion extracts the version list from a (name . [version ...])
// index entry and joins it into the version string.
func entryVersion(entry *cell) (string, error) {
	desc, ok := entry.tail.([]sexp)
	if !ok {
		// non-dotted spelling (name [version ...])
		if len(entry.items) > 1 {
			desc, ok = entry.items[1].([]sexp)
		}
		if !ok {
			return "", fmt.Errorf("entry is missing the package descriptor vector")
		}
	}
	if len(desc) == 0 {
		return "", fmt.Errorf("package descriptor vector is empty")
	}

	versionList, ok := desc[0].(*cell)
	if !ok || versionList.tail != nil {
		return "", fmt.Errorf("package descriptor has no version list")
	}

	nums := make([]int64, 0, len(versionList.items))
	for _, it := range versionList.items {
		n, ok := it.(int64)
		if !ok {
			return "", fmt.Errorf("version component %v is not an integer", it)
		}
		nums = append(nums, n)
	}
	return joinVersion(nums)
}

// pre-release sentinels used in version lists, matching the archive's
// own version encoding
var versionMarkers = map[int64]string{
	-1: "pre",
	-2: "beta",
	-3: "alpha",
	-4: "snapshot",
}

// joinVersion renders a version list as the archive spells it: numbers
// dot-separated, pre-release markers attached without a separator.
func joinVersion(nums []int64) (string, error) {
	if len(nums) == 0 {
		return "", fmt.Errorf("empty version list")
	}

	var sb strings.Builder
	prevNum := false
	for _, n := range nums {
		if n >= 0 {
			if prevNum {
				sb.WriteByte('.')
			}
			sb.WriteString(strconv.FormatInt(n, 10))
			prevNum = true
			continue
		}
		marker, ok := versionMarkers[n]
		if !ok {
			return "", fmt.Errorf("unknown version marker %d", n)
		}
		sb.WriteString(marker)
		prevNum = false
	}
	return sb.String(), nil
}
