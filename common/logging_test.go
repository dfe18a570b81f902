package common

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOutputSplitter_Routing tests that lines are routed by level
func TestOutputSplitter_Routing(t *testing.T) {
	tests := []struct {
		name         string
		logMessage   []byte
		expectStderr bool
	}{
		{
			name:         "ErrorLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=error msg="pg_dump failed"`),
			expectStderr: true,
		},
		{
			name:         "JSONErrorLevel",
			logMessage:   []byte(`{"level":"error","msg":"pg_dump failed"}`),
			expectStderr: true,
		},
		{
			name:         "InfoLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=info msg="deploy started"`),
			expectStderr: false,
		},
		{
			name:         "WarnLevel",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=warning msg="no sitemap"`),
			expectStderr: false,
		},
		{
			name:         "ErrorInMessage",
			logMessage:   []byte(`time="2024-01-15T10:30:00Z" level=info msg="error occurred but not error level"`),
			expectStderr: false,
		},
		{
			name:         "EmptyMessage",
			logMessage:   []byte(``),
			expectStderr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			splitter := &OutputSplitter{Stdout: &stdout, Stderr: &stderr}

			n, err := splitter.Write(tt.logMessage)
			require.NoError(t, err)
			assert.Equal(t, len(tt.logMessage), n)

			if tt.expectStderr {
				assert.Equal(t, string(tt.logMessage), stderr.String())
				assert.Empty(t, stdout.String())
			} else {
				assert.Equal(t, string(tt.logMessage), stdout.String())
				assert.Empty(t, stderr.String())
			}
		})
	}
}

// TestOutputSplitter_WithLogrus tests the splitter behind a real logger
func TestOutputSplitter_WithLogrus(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&OutputSplitter{Stdout: &stdout, Stderr: &stderr})

	logger.Info("linking live folder")
	logger.Error("install folder already exists")

	assert.Contains(t, stdout.String(), "linking live folder")
	assert.NotContains(t, stdout.String(), "install folder already exists")
	assert.Contains(t, stderr.String(), "install folder already exists")
}

// TestLogger_GlobalInstance tests the global logger is wired to the splitter
func TestLogger_GlobalInstance(t *testing.T) {
	require.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok)
}
