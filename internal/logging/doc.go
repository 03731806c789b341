// Package logging provides structured logging for flixbridge.
//
// It wraps Go's log/slog JSON handler and adds helpers for the context that
// matters when tracing a request through the bridge: the session that owns
// it, the component that handled it, and the job id used for correlation.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/bridge.log", logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("transport opened", "address", addr)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	sessionLogger := logger.WithSession(sessionID)
//	queueLogger := sessionLogger.WithComponent("scheduler")
//	queueLogger.WithJob("42", "lsp/hover").Debug("job sent")
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"job sent","session_id":"...","component":"scheduler","job_id":"42","kind":"lsp/hover"}
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers share the underlying
// handler and file.
package logging
