package publishers

import "github.com/biggo-labs/birse-go/pkg/sdklog"

// Logger defines the logging surface publishers rely on.
type Logger = sdklog.Logger

func ensureLogger(log Logger) Logger {
	return sdklog.Ensure(log)
}
