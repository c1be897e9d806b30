package sim

import (
	"encoding/json"
	"os"
	"sync"

	"coffeefleet-sim/internal/telemetry"
)

// FileWriter writes messages to JSONL files. Alerts go to a separate file
// when one is configured.
type FileWriter struct {
	mu        sync.Mutex
	teleFile  *os.File
	alertFile *os.File
	teleEnc   *json.Encoder
	alertEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. alertPath may be empty to keep alerts
// in the telemetry log.
func NewFileWriter(telemetryPath, alertPath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if alertPath != "" {
		af, err := os.Create(alertPath)
		if err != nil {
			tf.Close()
			return nil, err
		}
		fw.alertFile = af
		fw.alertEnc = json.NewEncoder(af)
	}
	return fw, nil
}

// Write logs a single message.
func (f *FileWriter) Write(msg telemetry.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.Kind() == telemetry.KindAlert && f.alertEnc != nil {
		return f.alertEnc.Encode(msg)
	}
	return f.teleEnc.Encode(msg)
}

// WriteBatch logs multiple messages.
func (f *FileWriter) WriteBatch(msgs []telemetry.Message) error {
	for _, m := range msgs {
		if err := f.Write(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.teleFile != nil {
		if e := f.teleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.alertFile != nil {
		if e := f.alertFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
