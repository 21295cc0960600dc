package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	loggerOnce   sync.Once
)

// InitLogger initializes the global structured logger.
// Only the first call has an effect.
func InitLogger(level string, pretty bool) {
	initLogger(level, pretty, os.Stdout)
}

// InitLoggerTo is InitLogger with an explicit destination. Interactive
// surfaces log to stderr so stdout stays readable.
func InitLoggerTo(level string, pretty bool, out io.Writer) {
	initLogger(level, pretty, out)
}

func initLogger(level string, pretty bool, out io.Writer) {
	loggerOnce.Do(func() {
		logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil || logLevel == zerolog.NoLevel {
			logLevel = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(logLevel)

		if pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		globalLogger = zerolog.New(out).With().Timestamp().Logger()
		log.Logger = globalLogger
	})
}

// GetLogger returns the global logger, initializing it with defaults if needed.
func GetLogger() zerolog.Logger {
	initLogger("info", false, os.Stdout)
	return globalLogger
}

// ForComponent returns a child logger tagged with the pipeline component name.
func ForComponent(component string) zerolog.Logger {
	return GetLogger().With().Str("component", component).Logger()
}

// WithSession creates a logger carrying a pipeline session id.
// A new id is generated when sessionID is empty.
func WithSession(sessionID string) zerolog.Logger {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return GetLogger().With().Str("session_id", sessionID).Logger()
}

// NewSessionID generates a new correlation id for one hosting view.
func NewSessionID() string {
	return uuid.New().String()
}
