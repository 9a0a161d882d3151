package remote

import "fmt"

// Error kinds surfaced by Call/Cast/Spawn/Monitor, matching spec.md §7's
// taxonomy for the cross-node paths.
var (
	ErrServerNotRunning = fmt.Errorf("remote: target actor not running")
	ErrCallTimeout      = fmt.Errorf("remote: call timed out")
	ErrNodeNotReachable = fmt.Errorf("remote: node not reachable")
	ErrBehaviorNotFound = fmt.Errorf("remote: behavior not registered")
	ErrSerialization    = fmt.Errorf("remote: serialization")
)
