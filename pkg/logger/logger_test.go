package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		development   bool
		logFormat     string
		expectedLevel logrus.Level
		expectJSON    bool
	}{
		{
			name:          "production defaults to info and json",
			expectedLevel: logrus.InfoLevel,
			expectJSON:    true,
		},
		{
			name:          "development defaults to debug and text",
			development:   true,
			expectedLevel: logrus.DebugLevel,
			expectJSON:    false,
		},
		{
			name:          "development with json format",
			logLevel:      "warn",
			development:   true,
			logFormat:     "JSON",
			expectedLevel: logrus.WarnLevel,
			expectJSON:    true,
		},
		{
			name:          "invalid level defaults to info",
			logLevel:      "loud",
			expectedLevel: logrus.InfoLevel,
			expectJSON:    true,
		},
		{
			name:          "case insensitive level",
			logLevel:      "ERROR",
			expectedLevel: logrus.ErrorLevel,
			expectJSON:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("LOG_LEVEL")
			if tt.logFormat != "" {
				os.Setenv("LOG_FORMAT", tt.logFormat)
			} else {
				os.Unsetenv("LOG_FORMAT")
			}
			defer os.Unsetenv("LOG_FORMAT")

			Logger = nil
			log := InitLogger(tt.logLevel, tt.development)

			assert.Equal(t, tt.expectedLevel, log.GetLevel())
			_, isJSON := log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.expectJSON, isJSON)
			assert.Same(t, log, GetLogger())
		})
	}
}

func TestWithPartition(t *testing.T) {
	Logger = nil
	log := InitLogger("debug", false)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithPartition("39", "2023").Info("standings folded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "39", entry["league"])
	assert.Equal(t, "2023", entry["season"])
	assert.Equal(t, "standings folded", entry["msg"])
}

func TestWithPipeline(t *testing.T) {
	Logger = nil
	log := InitLogger("debug", false)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithPipeline("prematch", "run-1").Debug("expanding rows")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "prematch", entry["pipeline"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "debug", entry["level"])
}
