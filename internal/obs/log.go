package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.Mutex
	logger   = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Setup configures the shared process logger. The local environment gets a
// human-readable console writer; everywhere else emits JSON lines.
func Setup(env string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	var w io.Writer = os.Stdout
	if env == "local" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// Logger returns the shared structured logger used across the service.
func Logger() zerolog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return logger
}

// SetOutput redirects log output. Intended for tests capturing log lines.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = logger.Output(w)
}
