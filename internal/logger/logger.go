package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	isDevelopment = false // if running in debug mode

	mu          sync.Mutex
	root        zerolog.Logger
	initialized bool
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// GetLogger returns a child logger tagged with the given component name.
// All components share a single root logger so formatting stays uniform.
func GetLogger(component string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if !initialized {
		if isDevelopment {
			// Human-readable logs for development mode
			consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339,
				FormatLevel: func(i any) string {
					return strings.ToUpper(fmt.Sprintf("[%5s]", i))
				},
			}
			root = zerolog.New(consoleWriter).Level(zerolog.TraceLevel).With().Timestamp().Logger()
		} else {
			root = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}
		initialized = true
	}

	return root.With().Str("component", component).Logger()
}

// SetDevelopment switches to human-readable console output. Takes effect on
// the next GetLogger call.
func SetDevelopment(value bool) {
	mu.Lock()
	defer mu.Unlock()
	isDevelopment = value
	initialized = false
}
