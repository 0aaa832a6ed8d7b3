package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Initialize sets up the global logger with appropriate configuration
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	Logger = zerolog.New(consoleWriter()).
		With().
		Timestamp().
		Caller().
		Logger()

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Replace standard log with zerolog
	log.Logger = Logger
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// AttachFileOutput mirrors log output into the file at path in addition to
// the console. Call after Initialize.
func AttachFileOutput(path string) error {
	file, err := FileWriter(path)
	if err != nil {
		return err
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(consoleWriter(), file)).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Logger
	return nil
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}
}
