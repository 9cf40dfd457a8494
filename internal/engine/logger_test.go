package engine

import (
	"context"

	"github.com/flowrunner/taskrunner/internal/platform/logger"
)

// noopLogger discards everything; Manager.log must tolerate a
// non-nil-interface logger that simply does nothing, for tests that
// don't care about log output.
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}
func (noopLogger) Fatal(msg string, fields ...interface{}) {}
func (noopLogger) WithFields(fields map[string]interface{}) logger.Logger { return noopLogger{} }
func (noopLogger) WithContext(ctx context.Context) logger.Logger          { return noopLogger{} }
