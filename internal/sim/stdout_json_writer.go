package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"coffeefleet-sim/internal/telemetry"
)

// JSONStdoutWriter prints messages as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// NewJSONWriter creates a JSONStdoutWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

// Write outputs a message in JSON format.
func (w *JSONStdoutWriter) Write(msg telemetry.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteBatch outputs multiple messages in JSON format.
func (w *JSONStdoutWriter) WriteBatch(msgs []telemetry.Message) error {
	for _, m := range msgs {
		if err := w.Write(m); err != nil {
			return err
		}
	}
	return nil
}
