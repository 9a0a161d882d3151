package cluster

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger used by the cluster membership layer.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the cluster membership
// layer.
func UseLogger(logger btclog.Logger) {
	log = logger
}
