package storage

import (
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrStoreClosed   = errors.New("store closed")
	ErrInvalidEntry  = errors.New("invalid history entry")
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): Path is the history directory
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Filter narrows a Query. Zero values mean "all tasks" and "no limit".
type Filter struct {
	Task  string
	Limit int
}
