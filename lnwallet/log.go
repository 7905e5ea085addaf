package lnwallet

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by lnwallet.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the lnwallet package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
