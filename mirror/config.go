package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultOrg is the hosting organisation holding the mirrors.
	DefaultOrg = "emacs-straight"
	// DefaultELPAURL is the bleeding-edge GNU ELPA archive.
	DefaultELPAURL = "https://elpa.gnu.org/devel/"
	// DefaultEpkgsRemote is the Emacsmirror package index repository.
	DefaultEpkgsRemote = "https://github.com/emacsmirror/epkgs.git"
	// DefaultOrgModeRemote is the upstream org-mode repository.
	DefaultOrgModeRemote = "https://git.savannah.gnu.org/git/emacs/org-mode.git"
	// DefaultTokenUser is the username paired with the access token in
	// credentialed push URLs. GitHub ignores the username for token
	// auth, it only has to be non-empty.
	DefaultTokenUser = "git"
)

// Config holds the immutable parameters of a mirror instance. Values
// are fixed at construction, per-run toggles live in RunOptions.
type Config struct {
	// WorkDir is the root of the on-disk state: package clones,
	// downloaded tarballs and tarball staging areas. It survives
	// between runs and doubles as the download cache.
	WorkDir string `yaml:"work_dir"`

	// Org is the hosting organisation mirrors are pushed to.
	Org string `yaml:"org"`

	// TokenUser and Token form the credentials embedded in push URLs.
	// Token is required unless every run skips pulls and pushes.
	TokenUser string `yaml:"token_user"`
	Token     string `yaml:"-"`

	// ELPAURL is the archive base URL, must end in a slash.
	ELPAURL string `yaml:"elpa_url"`

	// EpkgsRemote is the public Emacsmirror index remote.
	EpkgsRemote string `yaml:"epkgs_remote"`

	// OrgModeRemote is the upstream org-mode remote.
	OrgModeRemote string `yaml:"orgmode_remote"`

	// GitENVs is the environment given to every git subprocess.
	GitENVs []string `yaml:"-"`
}

// ValidateAndApplyDefaults validates the config and fills in defaults
// for missing values.
func (c *Config) ValidateAndApplyDefaults() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	absWorkDir, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("unable to resolve work dir err:%w", err)
	}
	c.WorkDir = absWorkDir

	if c.Org == "" {
		c.Org = DefaultOrg
	}
	if c.TokenUser == "" {
		c.TokenUser = DefaultTokenUser
	}
	if c.ELPAURL == "" {
		c.ELPAURL = DefaultELPAURL
	}
	if !strings.HasSuffix(c.ELPAURL, "/") {
		c.ELPAURL += "/"
	}
	if c.EpkgsRemote == "" {
		c.EpkgsRemote = DefaultEpkgsRemote
	}
	if c.OrgModeRemote == "" {
		c.OrgModeRemote = DefaultOrgModeRemote
	}
	return nil
}

// RunOptions are the per-run toggles. The zero value runs everything.
type RunOptions struct {
	// skip whole sources
	SkipELPA        bool
	SkipEmacsmirror bool
	SkipOrgMode     bool

	// skip phases of the ELPA source
	SkipIndex  bool
	SkipPulls  bool
	SkipPushes bool

	// OnlyPackage restricts the ELPA package loops to a single
	// package, for debugging a problematic one.
	OnlyPackage string
}

// wantPackage reports whether the named package is in scope for this
// run.
func (o RunOptions) wantPackage(name string) bool {
	return o.OnlyPackage == "" || o.OnlyPackage == name
}
