package btcdhelpers

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by btcdhelpers.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the btcdhelpers package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
