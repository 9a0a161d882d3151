package transport

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-level logger used by the transport layer. It defaults
// to the disabled logger so that importers who never call UseLogger do not
// pay for, or see, any log output.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the transport layer.
func UseLogger(logger btclog.Logger) {
	log = logger
}
