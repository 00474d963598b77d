package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// Pipelines write their tables to stdout in some commands, so logs go to stderr.
	log.SetOutput(os.Stderr)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

// WithRunID creates a logger scoped to one pipeline invocation
func WithRunID(runID string) *logrus.Entry {
	return GetLogger().WithField("run_id", runID)
}

// WithPipeline creates a logger with pipeline and run context
func WithPipeline(pipeline, runID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"pipeline": pipeline,
		"run_id":   runID,
	})
}

// WithPartition creates a logger for one league/season partition
func WithPartition(league, season string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"league": league,
		"season": season,
	})
}

// WithArtifact creates a logger with artifact store context
func WithArtifact(backend, name string) *logrus.Entry {
	fields := logrus.Fields{"artifact_backend": backend}
	if name != "" {
		fields["artifact"] = name
	}
	return GetLogger().WithFields(fields)
}
