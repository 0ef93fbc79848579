// Package logx holds the shared logger used throughout the project.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the shared logger used throughout the project.
var Log = log.Logger

func init() {
	SetLevel(os.Getenv("LOG_LEVEL"))
	Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// SetLevel applies a textual log level; empty or unknown means info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "none":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetupFile duplicates log output into a size-rotated file.
func SetupFile(path string) {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	Log = Log.Output(io.MultiWriter(console, rot))
}
