package kgo

import "github.com/twmb/kreq/pkg/kreq"

// LogLevel designates which severity a log message is. It is the engine's
// own level type; this package re-exports it so callers configuring a
// Client never have to import pkg/kreq directly.
type LogLevel = kreq.LogLevel

const (
	LogLevelNone  = kreq.LogLevelNone
	LogLevelError = kreq.LogLevelError
	LogLevelWarn  = kreq.LogLevelWarn
	LogLevelInfo  = kreq.LogLevelInfo
	LogLevelDebug = kreq.LogLevelDebug
)

// Logger is the logging sink the broker connection layer writes to. Log
// formatting and the sink implementation itself are caller concerns; this
// package only ever calls through this interface.
type Logger = kreq.Logger
