package discovery

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by discovery.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the discovery package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
