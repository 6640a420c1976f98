package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendBatchLimit is the most messages Resend accepts per batch call.
const resendBatchLimit = 100

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a new ResendSender with the given API key and default from address.
// PRE: apiKey is a valid Resend API key; from is a valid sender address
// POST: Returns a ready-to-use sender
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// params converts a SendRequest, filling in the default sender.
func (s *ResendSender) params(req SendRequest) *resend.SendEmailRequest {
	from := req.From
	if from == "" {
		from = s.from
	}
	p := &resend.SendEmailRequest{
		From:    from,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		Text:    req.Text,
		ReplyTo: req.ReplyTo,
	}
	if len(req.Tags) > 0 {
		names := make([]string, 0, len(req.Tags))
		for name := range req.Tags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Tags = append(p.Tags, resend.Tag{Name: name, Value: req.Tags[name]})
		}
	}
	return p
}

// Send sends a single email via Resend.
// PRE: req has at least one recipient and a subject
// POST: Email is queued for delivery; returns the Resend message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.params(req))
	if err != nil {
		slog.Error("resend_send_failed", "error", err, "recipients", len(req.To), "subject", req.Subject)
		return SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}

	slog.Info("resend_sent", "message_id", sent.Id, "recipients", len(req.To), "subject", req.Subject)
	return SendResult{MessageID: sent.Id, SentAt: time.Now()}, nil
}

// SendBatch sends multiple emails via Resend's batch API, chunked to the provider limit.
// PRE: len(reqs) > 0
// POST: All emails are queued; returns results in the same order as requests
func (s *ResendSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	var results []SendResult
	for i := 0; i < len(reqs); i += resendBatchLimit {
		end := min(i+resendBatchLimit, len(reqs))
		chunk := reqs[i:end]

		batch := make([]*resend.SendEmailRequest, 0, len(chunk))
		for _, req := range chunk {
			batch = append(batch, s.params(req))
		}

		resp, err := s.client.Batch.SendWithContext(ctx, batch)
		if err != nil {
			slog.Error("resend_batch_failed", "error", err, "batch_size", len(chunk))
			return results, fmt.Errorf("resend batch send failed: %w", err)
		}
		for _, item := range resp.Data {
			results = append(results, SendResult{MessageID: item.Id, SentAt: time.Now()})
		}
		slog.Info("resend_batch_sent", "count", len(chunk), "total_sent", len(results))
	}
	return results, nil
}
