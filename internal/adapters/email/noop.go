package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NoopSender logs sends without delivering them. It keeps the requests it saw
// so development pages and tests can inspect what would have gone out.
type NoopSender struct {
	mu   sync.Mutex
	sent []SendRequest
}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the email but does not deliver it.
// PRE: req is a valid SendRequest
// POST: Returns a noop result without actual delivery
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	slog.Info("noop_email_send", "recipients", len(req.To), "subject", req.Subject)
	s.record(req)
	return SendResult{
		MessageID: fmt.Sprintf("noop-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}

// SendBatch logs the batch but does not deliver.
// PRE: reqs is a slice of SendRequests
// POST: Returns noop results for each request without actual delivery
func (s *NoopSender) SendBatch(_ context.Context, reqs []SendRequest) ([]SendResult, error) {
	results := make([]SendResult, 0, len(reqs))
	for i, req := range reqs {
		slog.Info("noop_email_batch", "index", i, "recipients", len(req.To), "subject", req.Subject)
		s.record(req)
		results = append(results, SendResult{
			MessageID: fmt.Sprintf("noop-batch-%d-%d", time.Now().UnixNano(), i),
			SentAt:    time.Now(),
		})
	}
	return results, nil
}

// Sent returns a copy of every request seen so far.
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest(nil), s.sent...)
}

func (s *NoopSender) record(req SendRequest) {
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
}
