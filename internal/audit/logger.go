package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/ACTA-sub001/internal/observability"
)

// Config configures the audit logger.
type Config struct {
	// Enabled turns audit logging on. A disabled logger accepts events and
	// drops them, so call sites never branch.
	Enabled bool

	// Output selects the sink: "stdout", "stderr", or "file:<path>".
	Output string

	// Format is "json" or "text". JSON is the default.
	Format string

	// BufferSize is the capacity of the async event buffer (default 1000).
	BufferSize int

	// EventTypes filters which events are written. Empty means all.
	EventTypes []EventType
}

// Logger writes audit events through a buffered async channel so producers
// on the task hot path never block on I/O. When the buffer is full the event
// is written synchronously rather than dropped: audit records are the point.
type Logger struct {
	config     Config
	output     io.WriteCloser
	slogger    *slog.Logger
	buffer     chan *Event
	wg         sync.WaitGroup
	done       chan struct{}
	eventTypes map[EventType]bool
}

// NewLogger creates an audit logger. Close must be called to flush the
// buffer on shutdown.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}

	var output io.WriteCloser
	switch {
	case config.Output == "stdout" || config.Output == "":
		output = os.Stdout
	case config.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	eventTypes := make(map[EventType]bool, len(config.EventTypes))
	for _, et := range config.EventTypes {
		eventTypes[et] = true
	}

	l := &Logger{
		config:     config,
		output:     output,
		buffer:     make(chan *Event, config.BufferSize),
		done:       make(chan struct{}),
		eventTypes: eventTypes,
	}

	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(output, nil)
	} else {
		handler = slog.NewJSONHandler(output, nil)
	}
	l.slogger = slog.New(handler).With("component", "audit")

	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

// Close flushes remaining events and closes the logger.
func (l *Logger) Close() error {
	if !l.config.Enabled {
		return nil
	}

	close(l.done)
	l.wg.Wait()

	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

// Log records one audit event, filling ID, timestamp, and trace correlation
// when absent.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if !l.config.Enabled || event == nil {
		return
	}
	if len(l.eventTypes) > 0 && !l.eventTypes[event.Type] {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = LevelInfo
	}
	if event.TraceID == "" {
		event.TraceID = observability.GetTraceID(ctx)
	}
	if event.SpanID == "" {
		event.SpanID = observability.GetSpanID(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = observability.GetCorrelationID(ctx)
	}
	if event.ProfileID == "" {
		event.ProfileID = observability.GetProfileID(ctx)
	}

	select {
	case l.buffer <- event:
	default:
		// Buffer full: write inline instead of dropping the record.
		l.writeEvent(event)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-l.done:
			for {
				select {
				case event := <-l.buffer:
					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	attrs := []any{
		"audit_id", event.ID,
		"event_type", string(event.Type),
		"timestamp", event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.ProfileID != "" {
		attrs = append(attrs, "profile_id", event.ProfileID)
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", event.CorrelationID)
	}
	if event.TaskID != "" {
		attrs = append(attrs, "task_id", event.TaskID)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if event.Tool != "" {
		attrs = append(attrs, "tool", event.Tool)
	}
	if event.Scope != "" {
		attrs = append(attrs, "scope", event.Scope)
	}
	if event.Risk != "" {
		attrs = append(attrs, "risk", event.Risk)
	}
	if event.Decision != "" {
		attrs = append(attrs, "decision", event.Decision)
	}
	if event.Source != "" {
		attrs = append(attrs, "source", event.Source)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.Remember {
		attrs = append(attrs, "remember", true)
	}
	if event.TraceID != "" {
		attrs = append(attrs, "trace_id", event.TraceID)
	}
	if event.SpanID != "" {
		attrs = append(attrs, "span_id", event.SpanID)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	switch event.Level {
	case LevelWarn:
		l.slogger.Warn(string(event.Type), attrs...)
	case LevelError:
		l.slogger.Error(string(event.Type), attrs...)
	default:
		l.slogger.Info(string(event.Type), attrs...)
	}
}
