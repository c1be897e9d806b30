package sim

import (
	"context"
	"log/slog"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

// MessageWriter is implemented by every telemetry sink.
type MessageWriter interface {
	Write(telemetry.Message) error
}

// Optional: writers may support batch mode.
type batchWriter interface {
	WriteBatch([]telemetry.Message) error
}

// WriteAll writes msgs through w, using batch mode when w supports it.
func WriteAll(w MessageWriter, msgs []telemetry.Message) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(msgs)
	}
	for _, m := range msgs {
		if err := w.Write(m); err != nil {
			return err
		}
	}
	return nil
}

// Recorder binds a writer to a set of topics for as long as it is open.
// Write errors are logged and counted; they never reach the publisher.
type Recorder struct {
	name    string
	writer  MessageWriter
	scope   *broker.Scope
	log     *slog.Logger
	metrics *Metrics
}

// NewRecorder subscribes w to topics. name labels log lines and the sink
// error counter.
func NewRecorder(sub broker.Subscriber, name string, w MessageWriter, topics []string, log *slog.Logger, m *Metrics) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	r := &Recorder{name: name, writer: w, scope: broker.NewScope(sub), log: log, metrics: m}
	for _, t := range topics {
		r.scope.Bind(t, r.handle)
	}
	return r
}

func (r *Recorder) handle(_ context.Context, msg telemetry.Message) error {
	if err := r.writer.Write(msg); err != nil {
		r.metrics.SinkErrors.WithLabelValues(r.name).Inc()
		r.log.Error("sink write failed", "sink", r.name, "topic", msg.Topic, "err", err)
	}
	return nil
}

// Close unsubscribes the recorder. The writer is not closed.
func (r *Recorder) Close() {
	r.scope.Close()
}
