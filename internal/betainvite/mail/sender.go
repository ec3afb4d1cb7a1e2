// Package mail delivers invitation emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/betainvite/pkg/slogx"
)

// Sender delivers a plain text message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ErrNotConfigured is returned by LogSender for every message.
var ErrNotConfigured = errors.New("mail: no smtp host configured")

// LogSender is the fallback when no SMTP host is configured. It logs each
// message and reports it as undelivered, so waiting list entries stay
// pending until a real sender is available.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	slogx.FromContext(ctx).Warn("email not delivered, no smtp host configured",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(body)),
	)
	return fmt.Errorf("%w: message to %s not sent", ErrNotConfigured, to)
}

// Message is a captured Send call.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Recorder keeps every message in memory. Tests use it as a Sender; Err,
// when set, is returned from Send and nothing is recorded.
type Recorder struct {
	mu       sync.Mutex
	Err      error
	messages []Message
}

func (r *Recorder) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of the recorded messages in send order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
