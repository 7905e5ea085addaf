package derkey

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by derkey. The caller may swap it out
// for their own btclog.Logger via UseLogger, mirroring the pattern the
// teacher repo follows for each of its sub-systems.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the derkey package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
