// Package logging builds the process-wide zap logger. Every package in
// this module logs through zap.L(), so the only thing callers need to
// do is invoke Init once, early in main.
package logging

import "go.uber.org/zap"

// Init builds a production zap logger and installs it as the global
// logger returned by zap.L(). It returns a flush func the caller should
// defer.
func Init(nodeID string) func() {
	logger, err := zap.NewProduction(zap.Fields(zap.String("node_id", nodeID)))
	if err != nil {
		logger = zap.NewNop()
	}

	zap.ReplaceGlobals(logger)
	return func() {
		_ = logger.Sync()
	}
}
