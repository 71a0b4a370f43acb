package repository

// Config represents the local clone of the given remote.
type Config struct {
	// git URL of the remote, may embed credentials
	Remote string

	// Dir is the absolute path of the clone directory. it may or may
	// not contain a git database yet, Sync initialises one on demand
	Dir string

	// Bare clones have no working tree, used for pure relay mirrors
	Bare bool

	// Private marks the remote URL as credential-bearing. all failures
	// on a private remote are redacted
	Private bool
}

// SyncOptions tune a single sync-from-remote pass.
type SyncOptions struct {
	// extra refspecs fetched on top of the heads/tags/change namespaces,
	// eg an exclusion of a specific admin branch
	ExtraRefspecs []string

	// patterns preserved by the post-checkout clean of untracked and
	// ignored files
	ExcludePatterns []string

	// initialise nested working-tree submodules recursively
	Recursive bool
}

// Committer is the fixed bot identity used for mirror commits.
type Committer struct {
	Name  string
	Email string
}
