// Package logx is heartbeat's structured logging layer on top of zerolog.
//
// Console output is human-readable with a short caller; the daemon also
// writes JSON lines to a size-rotated file under <dir>/.logs.
package logx
