package instrument

import (
	"log/slog"
	"time"

	"github.com/vango-dev/statetree/pkg/observable"
)

// LogHooks returns hooks that write mutations and slow computations to
// logger at debug level and rejected mutations at warn level.
func LogHooks(logger *slog.Logger, slowCompute time.Duration) *observable.Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &observable.Hooks{
		OnMutation: func(op observable.Op, path []string) {
			logger.Debug("state mutation", "op", op, "path", joinPath(path))
		},
		OnCompute: func(d time.Duration) {
			if slowCompute > 0 && d >= slowCompute {
				logger.Debug("slow computed evaluation", "duration", d)
			}
		},
		OnError: func(op observable.Op, err error) {
			logger.Warn("state mutation rejected", "op", op, "kind", ErrorKind(err), "error", err)
		},
	}
}
