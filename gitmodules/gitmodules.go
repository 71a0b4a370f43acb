// Package gitmodules categorizes the submodules of the epkgs manifest
// into the emacsattic and emacsmirror package sets by parsing its
// .gitmodules file. Every line must be accounted for: an unrecognized
// line means the manifest format changed and mirroring must stop rather
// than silently drop packages.
package gitmodules

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/emacs-straight/gnu-elpa-mirror/giturl"
)

// ErrInvalidManifest marks manifest classification and sanity failures.
// Publishing a partial classification would wipe packages from the
// published lists, so these abort the whole mirror run instead of
// failing a single source.
var ErrInvalidManifest = errors.New("invalid epkgs manifest")

const githubHost = "github.com"

var (
	headerRgx = regexp.MustCompile(`^\[submodule "[^"]+"\]$`)
	pathRgx   = regexp.MustCompile(`^\tpath = .+$`)
	branchRgx = regexp.MustCompile(`^\tbranch = .+$`)
	urlRgx    = regexp.MustCompile(`^\turl = (.+)$`)

	// upstream source repositories tracked as submodules alongside the
	// mirrored packages, not packages themselves
	knownURLs = []*regexp.Regexp{
		regexp.MustCompile(`^https://git\.savannah\.gnu\.org/git/emacs/elpa(\.git)?$`),
		regexp.MustCompile(`^https://git\.savannah\.gnu\.org/git/emacs/nongnu(\.git)?$`),
		regexp.MustCompile(`^https://code\.orgmode\.org/bzg/org-mode(\.git)?$`),
	}
)

// denied drops submodules that must never be mirrored. sql-ident is a
// manifest typo duplicating sql-indent, the other two are not packages.
var denied = map[string]bool{
	"melpa/melpa":               true,
	"emacsmirror/emacswiki.org": true,
}

// Sanity thresholds on the classified set sizes. The manifest tracks
// thousands of packages, counts below these mean a truncated or
// corrupted manifest and pushing its categorization would wipe the
// published package lists.
const (
	minAttic  = 500
	minMirror = 1000
)

type lineKind int

const (
	lineUnrecognized lineKind = iota
	lineHeader
	linePath
	lineBranch
	// a url of one of the known non-package upstreams
	lineKnownURL
	// a package url, carries owner and repo
	lineURL
)

// manifestLine is one classified line of the manifest.
type manifestLine struct {
	kind  lineKind
	owner string
	repo  string
}

// Index holds the classified package sets in manifest order. A package
// appears in exactly one set.
type Index struct {
	Attic  []string
	Mirror []string
}

// Parse classifies every submodule of the given .gitmodules content.
// Any line that is not a submodule header, path, branch or recognized
// url is a fatal error.
func Parse(data string) (*Index, error) {
	ix := &Index{}

	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()

		ml := classifyLine(line)
		switch ml.kind {
		case lineHeader, linePath, lineBranch, lineKnownURL:
			continue
		case lineUnrecognized:
			return nil, fmt.Errorf("%w: unrecognized .gitmodules line %q", ErrInvalidManifest, line)
		}

		if ml.repo == "sql-ident" || denied[ml.owner+"/"+ml.repo] {
			continue
		}

		switch ml.owner {
		case "emacsattic":
			ix.Attic = append(ix.Attic, ml.repo)
		case "emacsmirror":
			ix.Mirror = append(ix.Mirror, ml.repo)
		default:
			return nil, fmt.Errorf("%w: unexpected submodule owner %q in line %q", ErrInvalidManifest, ml.owner, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read .gitmodules err:%w", err)
	}
	return ix, nil
}

// classifyLine tags a manifest line with its kind. The url field
// accepts the scp-style and https-style spellings of the same address.
func classifyLine(line string) manifestLine {
	switch {
	case headerRgx.MatchString(line):
		return manifestLine{kind: lineHeader}
	case pathRgx.MatchString(line):
		return manifestLine{kind: linePath}
	case branchRgx.MatchString(line):
		return manifestLine{kind: lineBranch}
	}

	m := urlRgx.FindStringSubmatch(line)
	if m == nil {
		return manifestLine{kind: lineUnrecognized}
	}
	rawURL := m[1]

	for _, known := range knownURLs {
		if known.MatchString(rawURL) {
			return manifestLine{kind: lineKnownURL}
		}
	}

	gURL, err := giturl.Parse(rawURL)
	if err != nil || gURL.Host != githubHost {
		return manifestLine{kind: lineUnrecognized}
	}
	return manifestLine{
		kind:  lineURL,
		owner: gURL.Owner(),
		repo:  gURL.RepoName(),
	}
}

// Validate checks the classified set sizes against the sanity
// thresholds.
func (ix *Index) Validate() error {
	if len(ix.Attic) < minAttic {
		return fmt.Errorf("%w: only %d attic packages classified, expected at least %d", ErrInvalidManifest, len(ix.Attic), minAttic)
	}
	if len(ix.Mirror) < minMirror {
		return fmt.Errorf("%w: only %d mirror packages classified, expected at least %d", ErrInvalidManifest, len(ix.Mirror), minMirror)
	}
	return nil
}
