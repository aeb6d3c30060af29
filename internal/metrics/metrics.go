// Package metrics buffers named scalar telemetry from the training hot
// path and hands it to pluggable sinks at flush points chosen by the
// training loop. It is observational only: sink failures are logged and
// dropped, never surfaced to the trainer.
package metrics

import (
	"log"
	"sort"
	"strconv"
	"strings"
)

// Sink receives one flushed batch of scalars per call.
type Sink interface {
	Write(step int, values map[string]float64) error
	Close() error
}

// Logger accumulates delayed scalars between flushes. Within one buffer
// window, a later value for the same key replaces the earlier one.
type Logger struct {
	sinks   []Sink
	pending map[string]float64
}

func New(sinks ...Sink) *Logger {
	return &Logger{
		sinks:   sinks,
		pending: make(map[string]float64),
	}
}

// DelayLog merges values into the pending buffer without writing anything.
func (l *Logger) DelayLog(values map[string]float64) {
	for k, v := range values {
		l.pending[k] = v
	}
}

// Log writes values to the sinks immediately, bypassing the buffer.
func (l *Logger) Log(step int, values map[string]float64) {
	l.write(step, values)
}

// Flush writes the pending buffer under the given step and clears it.
func (l *Logger) Flush(step int) {
	if len(l.pending) == 0 {
		return
	}
	l.write(step, l.pending)
	l.pending = make(map[string]float64)
}

// Close flushes nothing and closes every sink.
func (l *Logger) Close() {
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			log.Printf("metrics: sink close failed: %v", err)
		}
	}
}

func (l *Logger) write(step int, values map[string]float64) {
	for _, s := range l.sinks {
		if err := s.Write(step, values); err != nil {
			log.Printf("metrics: sink write failed: %v", err)
		}
	}
}

// LogSink prints scalars through the standard logger, keys sorted for
// stable output.
type LogSink struct{}

func (LogSink) Write(step int, values map[string]float64) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatFloat(values[k]))
	}
	log.Printf("step=%d%s", step, b.String())
	return nil
}

func (LogSink) Close() error {
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
