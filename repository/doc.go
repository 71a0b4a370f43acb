// Package repository brings a local clone of a remote repository into a
// state mirroring the remote's full ref set, and pushes local refs back
// out with the same mirror-equivalent semantics.
//
// git's native `clone --mirror` is deliberately not used because a mirror
// clone cannot be combined with the working-tree operations the content
// replacement step needs. It is reimplemented as init + forced fetch of
// the `refs/heads`, `refs/tags` and `refs/change` namespaces, followed by
// a forced checkout and clean of the remote's default branch.
//
// Remote URLs flagged as private (credential-bearing) never surface in
// diagnostics, any failure on them is reported as a generic redacted
// error.
package repository
