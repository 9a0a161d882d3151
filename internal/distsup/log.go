package distsup

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger used by the distributed supervisor.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the distributed
// supervisor.
func UseLogger(logger btclog.Logger) {
	log = logger
}
