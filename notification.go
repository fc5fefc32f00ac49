package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// NotifType classifies a notification for the host UI.
type NotifType string

const (
	// NotifSuccess marks a success notice.
	NotifSuccess NotifType = "success"
	// NotifError marks an error notice.
	NotifError NotifType = "error"
	// NotifPending marks an in-progress notice.
	NotifPending NotifType = "pending"
	// NotifWarning marks a warning notice.
	NotifWarning NotifType = "warning"
	// NotifInfo marks an informational notice.
	NotifInfo NotifType = "info"
)

// Notification is one structured notice emitted to the host application.
// The core never renders it.
type Notification struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Type      NotifType `json:"notif_type"`
}

// Sink receives notices from the core. Show presents one; Clear dismisses
// whatever is currently shown.
type Sink interface {
	Show(ctx context.Context, n Notification)
	Clear(ctx context.Context)
}

// NoOpSink discards all notices.
type NoOpSink struct{}

// Show implements Sink.
func (NoOpSink) Show(context.Context, Notification) {}

// Clear implements Sink.
func (NoOpSink) Clear(context.Context) {}

// ChannelSink forwards notices to a channel for the host's event loop. A
// Clear is delivered as a zero-value Notification with an empty Type.
type ChannelSink struct {
	notices chan Notification
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		notices: make(chan Notification, buffer),
	}
}

// Show implements Sink.
func (s *ChannelSink) Show(ctx context.Context, n Notification) {
	select {
	case s.notices <- n:
	case <-ctx.Done():
	}
}

// Clear implements Sink.
func (s *ChannelSink) Clear(ctx context.Context) {
	select {
	case s.notices <- Notification{}:
	case <-ctx.Done():
	}
}

// Notices returns the receive side of the sink.
func (s *ChannelSink) Notices() <-chan Notification {
	return s.notices
}

// JSONWriterSink writes one JSON line per notice, for logging hosts.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Show implements Sink.
func (s *JSONWriterSink) Show(_ context.Context, n Notification) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// Clear implements Sink. Clears are not meaningful for a log stream.
func (s *JSONWriterSink) Clear(context.Context) {}
