package email

import (
	"context"
	"log"
	"sync"
)

// LogSender writes messages to the process log instead of delivering them.
// Sent messages are kept so callers can inspect them.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	log.Printf("[Email] (log) %q -> %v", msg.Subject, msg.To)
	return nil
}

// Sent returns a copy of every message handed to Send
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
