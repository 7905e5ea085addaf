package lnwire

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by lnwire.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the lnwire package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
