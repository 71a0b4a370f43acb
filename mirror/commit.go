package mirror

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emacs-straight/gnu-elpa-mirror/elpa"
)

// CommitMeta pins the wall clock of a run and the upstream commits it
// mirrored, so every commit made during the run is traceable to the
// same upstream snapshot.
type CommitMeta struct {
	Timestamp       time.Time
	UpstreamCommits map[string]string
}

func newCommitMeta(now time.Time) CommitMeta {
	return CommitMeta{
		Timestamp:       now,
		UpstreamCommits: map[string]string{},
	}
}

// Date returns the short date used in repository descriptions.
func (cm CommitMeta) Date() string {
	return cm.Timestamp.Format("2006-01-02")
}

// Message renders a commit message with the run timestamp, the
// recorded upstream commits and optional extra provenance lines.
func (cm CommitMeta) Message(subject string, extra ...string) string {
	lines := []string{
		subject,
		"",
		"Timestamp: " + cm.Timestamp.Format("2006-01-02 15:04:05"),
	}

	sources := make([]string, 0, len(cm.UpstreamCommits))
	for source := range cm.UpstreamCommits {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		lines = append(lines, fmt.Sprintf("%s commit: %s", source, cm.UpstreamCommits[source]))
	}

	lines = append(lines, extra...)
	return strings.Join(lines, "\n")
}

// PackageMessage renders the commit message for a mirrored archive
// package, recording the exact upstream artifact it was built from.
func (cm CommitMeta) PackageMessage(pkg elpa.Package, archiveURL string) string {
	return cm.Message("Update "+pkg.Name,
		fmt.Sprintf("Sourced from %s version %s on GNU ELPA Devel", pkg.Name, pkg.Version),
		fmt.Sprintf("(see %s%s.html)", archiveURL, pkg.Name),
	)
}
