package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var stderr io.Writer = os.Stderr

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig enables the JSON file sink. Zero sizes take the defaults.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
)

// Service owns the output of every Logger derived from it, so Apply can
// change level and sinks at runtime (the daemon does this on config reload).
type Service struct {
	mu   sync.Mutex
	file *rotatingFile
	cur  atomic.Pointer[zerolog.Logger]
}

func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger {
	return Logger{out: func() zerolog.Logger { return *s.cur.Load() }}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(stderr))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "heartbeat.log"
		}
		size, keep := cfg.File.MaxSizeMB, cfg.File.MaxBackups
		if size <= 0 {
			size = defaultMaxSizeMB
		}
		if keep <= 0 {
			keep = defaultMaxBackups
		}
		f, err := openRotating(path, int64(size)<<20, keep)
		if err != nil {
			fmt.Fprintf(stderr, "logx: log file %s: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, f)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	s.cur.Store(&zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
