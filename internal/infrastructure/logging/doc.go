// Package logging provides structured logging for camnode.
//
// It wraps log/slog so every component logs through the same handler with
// the service name and build version attached.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// Logs default to stderr because the operator console prints to stdout.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("paired", "sys_id", id.SysID)
//	logger.Error("capture failed", "error", err)
//
// Never log broker passwords or API tokens.
package logging
