package sim

import (
	"errors"

	"coffeefleet-sim/internal/telemetry"
)

// MultiWriter fans messages out to several writers.
type MultiWriter struct {
	writers []MessageWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...MessageWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends a message to all writers. Every writer is tried; the errors
// are joined.
func (mw *MultiWriter) Write(msg telemetry.Message) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends messages to all writers, using batch mode where supported.
func (mw *MultiWriter) WriteBatch(msgs []telemetry.Message) error {
	var errs []error
	for _, w := range mw.writers {
		if err := WriteAll(w, msgs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
