package engine

import "errors"

var (
	ErrNoCommand = errors.New("no command configured")
	ErrNoDir     = errors.New("working directory does not exist")
)
