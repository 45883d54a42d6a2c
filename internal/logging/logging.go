package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"nithronos/boot/zfsgen/internal/config"
)

// New returns the process logger. Diagnostics always go to stderr, which
// systemd forwards to the journal (or kmsg this early in boot).
func New(cfg config.Config) zerolog.Logger {
	console := cfg.LogFormat == config.FormatConsole
	if cfg.LogFormat == config.FormatAuto {
		console = term.IsTerminal(int(os.Stderr.Fd()))
	}
	return NewWriter(os.Stderr, console, cfg.LogLevel)
}

// NewWriter returns a logger writing JSON lines, or human readable lines
// when console is set, to w.
func NewWriter(w io.Writer, console bool, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: !isTerminal(w)}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "zfsgen").Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
