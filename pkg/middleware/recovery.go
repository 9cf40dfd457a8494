package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/flowrunner/taskrunner/internal/platform/response"
)

// RecoveryConfig holds recovery middleware configuration.
type RecoveryConfig struct {
	Logger     Logger
	StackTrace bool
	PrintStack bool
}

// DefaultRecoveryConfig returns default recovery configuration.
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		StackTrace: true,
		PrintStack: false,
	}
}

// Recovery creates panic recovery middleware: a handler panic becomes
// a 500 internal_error envelope instead of an aborted connection.
func Recovery(config *RecoveryConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultRecoveryConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					var stack string
					if config.StackTrace {
						stack = string(debug.Stack())
					}

					if config.Logger != nil {
						config.Logger.Error("panic recovered",
							"error", err,
							"path", r.URL.Path,
							"method", r.Method,
							"stack", stack,
						)
					}
					if config.PrintStack {
						fmt.Printf("panic: %v\n%s\n", err, stack)
					}

					response.Error(w, response.ErrInternal, GetRequestID(r.Context()))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryWithLogger creates recovery middleware with a logger.
func RecoveryWithLogger(logger Logger) func(http.Handler) http.Handler {
	return Recovery(&RecoveryConfig{
		Logger:     logger,
		StackTrace: true,
	})
}
