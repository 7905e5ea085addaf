package channel

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by channel.
var log = btclog.Disabled

// UseLogger installs a new logger backend for the channel package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
