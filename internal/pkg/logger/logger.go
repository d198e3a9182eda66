// Package logger provides structured JSON logging with PII redaction for
// the dispatch worker and its sibling delivery-event handler.
package logger

import (
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(redactHook{})
	return l
}

// SetLevel sets the minimum log level for the default logger. Unknown
// level names are ignored, leaving the current level in place.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	base.SetLevel(lvl)
}

// Fields is a shorthand for the structured key/value pairs attached to a
// log entry.
type Fields = logrus.Fields

// WithFields returns an entry carrying the given structured fields.
func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// WithWorker returns an entry tagged with the invoking worker's id, the
// field every dispatch-side log line carries.
func WithWorker(workerID string) *logrus.Entry {
	return base.WithField("worker_id", workerID)
}

func Debug(msg string, fields Fields) { base.WithFields(fields).Debug(msg) }
func Info(msg string, fields Fields)  { base.WithFields(fields).Info(msg) }
func Warn(msg string, fields Fields)  { base.WithFields(fields).Warn(msg) }
func Error(msg string, fields Fields) { base.WithFields(fields).Error(msg) }

// redactHook masks email-shaped values in every field before a log entry
// is formatted, so message ids and recipient addresses never land in
// plaintext log storage.
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(entry *logrus.Entry) error {
	for key, val := range entry.Data {
		s, ok := val.(string)
		if !ok {
			continue
		}
		entry.Data[key] = redactPIIValue(key, s)
	}
	return nil
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	lk := strings.ToLower(key)
	if strings.Contains(lk, "email") || strings.Contains(lk, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
