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

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultFile is used when the file sink is enabled without a path.
const DefaultFile = "slotwatch.log"

type Config struct {
	Level string
	// Console writes to stdout. With neither Console nor an open file sink,
	// logs go to stderr instead.
	Console bool
	// JSON writes raw JSON lines instead of the console format, on stdout or
	// on the stderr fallback.
	JSON bool
	File FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the sinks behind every Logger it hands out.
type Service struct {
	stdout, stderr io.Writer

	mu   sync.Mutex
	file *os.File
	root atomic.Pointer[zerolog.Logger]
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

// New builds a Service from cfg and returns it with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{stdout: os.Stdout, stderr: os.Stderr}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

// Logger returns a Logger that follows this Service.
func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply replaces level and sinks. Loggers already handed out pick up the change.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stdio := func(w io.Writer) io.Writer {
		if cfg.JSON {
			return w
		}
		return consoleWriter(w)
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, stdio(s.stdout))
	}

	prev := s.file
	s.file = nil
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, stdio(s.stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	if prev != nil {
		_ = prev.Close()
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func consoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

// ParseLevel maps a level name to zerolog, accepting "warning" as warn.
// Unknown or empty names give def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}

// ValidLevel reports whether s is empty or a level ParseLevel understands.
func ValidLevel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "warning" {
		return true
	}
	lvl, err := zerolog.ParseLevel(s)
	return err == nil && lvl != zerolog.NoLevel
}
