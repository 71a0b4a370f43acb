package repository

import (
	"fmt"
	"regexp"
	"strings"
)

// to parse first line of "git ls-remote --symref <remote> HEAD"
// ref: refs/heads/xxxx  HEAD
var remoteHeadRgx = regexp.MustCompile(`^ref:\s+(refs/heads/\S+)\s+HEAD$`)

// parseRemoteHead extracts the default branch ref from ls-remote output.
// Empty output signals an empty remote (ErrEmptyRemote), non-empty output
// that doesn't carry the symref line is a hard error since the format is
// assumed stable.
func parseRemoteHead(out string) (string, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyRemote
	}

	firstLine, _, _ := strings.Cut(out, "\n")
	sections := remoteHeadRgx.FindStringSubmatch(strings.TrimSpace(firstLine))
	if len(sections) != 2 {
		return "", fmt.Errorf("unable to parse ls-remote output:%q", out)
	}
	return sections[1], nil
}
