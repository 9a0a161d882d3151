package remote

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger used by the remote call/cast/spawn/
// monitor layer.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
