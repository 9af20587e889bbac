// Package logging configures logrus for the gateway and provides the chi
// middleware that writes one structured entry per HTTP request.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/howard-nolan/cozegate/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds a logger from cfg. Output goes to stdout and, when cfg.File
// is set, to a size-rotated file as well. The returned close function
// releases the file and is safe to call when there is none.
func Setup(cfg config.LogConfig) (*log.Logger, func() error, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.LogConfig, stdout io.Writer) (*log.Logger, func() error, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level: %w", err)
	}

	logger := log.New()
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	closeFn := func() error { return nil }
	out := stdout
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(stdout, rotator)
		closeFn = rotator.Close
	}
	logger.SetOutput(out)

	return logger, closeFn, nil
}
