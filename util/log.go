package util

import (
	log "github.com/sirupsen/logrus"
)

// SetupLogging - Text output with full timestamps, trace level in debug mode.
func SetupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(log.TraceLevel)
		log.Info("Debug mode enabled")
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// LogSuccess - Log an info entry marked as a successful outcome.
func LogSuccess(entry *log.Entry, message string) {
	entry.WithField("result", "success").Info(message)
}

// DryRunEntry - Entry for logging an intended but skipped mutation.
func DryRunEntry(fields log.Fields) *log.Entry {
	return log.WithFields(fields).WithField("dry_run", true)
}
