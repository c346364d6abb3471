// Package logx wraps zerolog behind a small structured-logging API.
//
// A Logger created from a Service stays "live": Service.Apply swaps the
// underlying sinks and level at runtime (config hot reload) without the
// holders of derived loggers noticing. The zero Logger is a safe no-op.
package logx
