package timer

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger used by the durable timer service.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the durable timer
// service.
func UseLogger(logger btclog.Logger) {
	log = logger
}
