// Package common holds the pieces every deploy task shares: the process wide
// logger, the task error type, local shell execution and interactive prompts.
//
// Logging is built on logrus. Error level entries are routed to stderr and
// everything else to stdout, so a wrapper script can capture failures on
// their own stream while progress output stays on the terminal.
package common

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines by level. Lines containing
// "level=error" (text formatter) or "\"level\":\"error\"" (JSON formatter)
// go to Stderr, everything else to Stdout.
//
// Example Usage:
//
//	logger := logrus.New()
//	logger.SetOutput(&OutputSplitter{})
//	logger.Info("goes to stdout")
//	logger.Error("goes to stderr")
type OutputSplitter struct {
	// Stdout and Stderr default to os.Stdout and os.Stderr when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Write implements io.Writer.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		if splitter.Stderr != nil {
			return splitter.Stderr.Write(p)
		}
		return os.Stderr.Write(p)
	}
	if splitter.Stdout != nil {
		return splitter.Stdout.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process wide logger used by every task.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
