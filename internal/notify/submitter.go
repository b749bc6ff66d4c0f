// Package notify delivers best-effort side effects (transcript forwarding,
// report-ready notifications) to external endpoints. Delivery runs in the
// background with bounded retry; failures are logged and swallowed here so
// the interactive session never blocks or dies on a notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/medstra/streaming-avatar/internal/logging"
)

const (
	defaultMaxTries        = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
	defaultDeliveryTimeout = 30 * time.Second
)

// Submitter posts JSON payloads asynchronously. One submitter serves the
// whole session; Close waits for in-flight deliveries.
type Submitter struct {
	http            *http.Client
	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
	deliveryTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewSubmitter(httpClient *http.Client) *Submitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Submitter{
		http:            httpClient,
		maxTries:        defaultMaxTries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		deliveryTimeout: defaultDeliveryTimeout,
	}
}

// Submit queues one delivery and returns immediately. The delivery runs on
// the submitter's own deadline: canceling ctx after Submit returns does not
// abort it, so deliveries queued during shutdown still reach the endpoint.
// After Close, Submit is a logged no-op.
func (s *Submitter) Submit(ctx context.Context, url string, payload any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logging.Warnw("submit after close dropped", "url", url)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout)
		defer cancel()
		if err := s.deliver(dctx, url, payload); err != nil {
			logging.Warnw("notification delivery abandoned", "url", url, "err", err)
		}
	}()
}

// deliver posts the payload with exponential retry. A non-2xx response
// below 500 is permanent; everything else is retried until the attempt
// budget runs out.
func (s *Submitter) deliver(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.initialInterval
	retry.MaxInterval = s.maxInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return struct{}{}, nil
		}
		statusErr := fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return struct{}{}, statusErr
		}
		return struct{}{}, backoff.Permanent(statusErr)
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Debugw("retrying notification delivery", "url", url, "err", err, "next_retry", next.String())
		}),
	)
	return err
}

// Close stops accepting new submissions and waits for in-flight ones.
func (s *Submitter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
