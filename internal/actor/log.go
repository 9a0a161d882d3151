package actor

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-level logger used by the actor engine. It defaults to
// the disabled logger so that importers who never call UseLogger do not pay
// for, or see, any log output.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the actor engine. Callers
// typically wire this once at process startup, pointed at a subsystem tag
// carved out of the daemon's combined handler set.
func UseLogger(logger btclog.Logger) {
	log = logger
}
