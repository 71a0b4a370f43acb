// Package lock aliases sync mutex types to deadlock-detecting
// implementations. Detection is tuned for the long-running git and
// network operations this tool performs.
package lock

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

type Mutex = deadlock.Mutex
type RWMutex = deadlock.RWMutex

func init() {
	// mirror runs shell out to git/tar and can block on the network for
	// minutes, a short detection window would be all false positives
	deadlock.Opts.DeadlockTimeout = 30 * time.Minute
}
