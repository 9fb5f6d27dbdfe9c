package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"nhbvault/core/events"
)

const (
	// SignatureHeader carries "sha256=" followed by the hex HMAC of the body.
	SignatureHeader = "X-NHB-Signature"
	// EventHeader carries the event type of the delivery.
	EventHeader = "X-NHB-Event"
)

var (
	// ErrQueueFull is returned by Enqueue when the pending buffer is at capacity.
	ErrQueueFull = errors.New("webhook: delivery queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("webhook: dispatcher closed")
)

// Payload is the JSON body posted for every forwarded vault event.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt time.Time         `json:"occurredAt"`
	DeliveryID string            `json:"deliveryId"`
}

type settings struct {
	client     *http.Client
	attempts   int
	firstDelay time.Duration
	maxDelay   time.Duration
	types      map[string]struct{}
	logger     *slog.Logger
	queueSize  int
}

// Option adjusts a Dispatcher before its worker starts.
type Option func(*settings)

// WithHTTPClient replaces the default client, which times out after 15s.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRetryPolicy bounds delivery attempts and the exponential delay between
// them. Non-positive values keep the defaults of 5 attempts, 2s and 30s.
func WithRetryPolicy(attempts int, firstDelay, maxDelay time.Duration) Option {
	return func(s *settings) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if firstDelay > 0 {
			s.firstDelay = firstDelay
		}
		if maxDelay > 0 {
			s.maxDelay = maxDelay
		}
	}
}

// WithTypes restricts forwarding to the listed event types. An empty list
// forwards everything.
func WithTypes(types ...string) Option {
	return func(s *settings) {
		for _, t := range types {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			if s.types == nil {
				s.types = make(map[string]struct{})
			}
			s.types[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for dropped and abandoned deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQueueSize bounds the number of deliveries waiting for the worker.
func WithQueueSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// Dispatcher posts vault events to a single endpoint from one background
// worker. It satisfies events.Emitter; Emit never blocks and drops events
// that do not fit the queue.
type Dispatcher struct {
	endpoint string
	secret   []byte
	settings
	now func() time.Time

	ctx    context.Context
	stop   context.CancelFunc
	queue  chan delivery
	worker sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// NewDispatcher validates endpoint and secret and starts the worker.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return nil, errors.New("webhook: endpoint required")
	case len(secret) == 0:
		return nil, errors.New("webhook: secret required")
	}
	s := settings{
		client:     &http.Client{Timeout: 15 * time.Second},
		attempts:   5,
		firstDelay: 2 * time.Second,
		maxDelay:   30 * time.Second,
		logger:     slog.Default(),
		queueSize:  256,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.maxDelay < s.firstDelay {
		s.maxDelay = s.firstDelay
	}
	ctx, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint: endpoint,
		secret:   append([]byte(nil), secret...),
		settings: s,
		now:      time.Now,
		ctx:      ctx,
		stop:     stop,
		queue:    make(chan delivery, s.queueSize),
	}
	d.worker.Add(1)
	go d.run()
	return d, nil
}

// Close cancels pending retries and waits for the worker to exit. Queued
// deliveries that have not started are discarded.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stop()
	d.worker.Wait()
}

// Emit implements events.Emitter.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if err := d.Enqueue(evt); err != nil {
		d.logger.Warn("webhook event dropped", "type", evt.EventType(), "error", err)
	}
}

// Enqueue schedules evt for delivery. Events outside the type filter are
// skipped without error.
func (d *Dispatcher) Enqueue(evt events.Event) error {
	if d == nil || d.ctx.Err() != nil {
		return ErrClosed
	}
	if !d.forwards(evt.EventType()) {
		return nil
	}
	job, err := d.encode(evt)
	if err != nil {
		return err
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) forwards(eventType string) bool {
	if d.types == nil {
		return true
	}
	_, ok := d.types[eventType]
	return ok
}

func (d *Dispatcher) encode(evt events.Event) (delivery, error) {
	payload := Payload{
		Type:       evt.EventType(),
		OccurredAt: d.now().UTC(),
		DeliveryID: uuid.NewString(),
	}
	if body := evt.Event(); body != nil {
		payload.Attributes = body.Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return delivery{}, fmt.Errorf("webhook: encode %s: %w", payload.Type, err)
	}
	return delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}, nil
}

func (d *Dispatcher) run() {
	defer d.worker.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-d.queue:
			d.deliver(job)
		}
	}
}

func (d *Dispatcher) schedule() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.firstDelay
	exp.MaxInterval = d.maxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.attempts-1)), d.ctx)
}

func (d *Dispatcher) deliver(job delivery) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return d.post(job)
	}, d.schedule())
	if err == nil || d.ctx.Err() != nil {
		return
	}
	d.logger.Error("webhook delivery abandoned",
		"type", job.eventType,
		"delivery_id", job.id,
		"attempts", attempts,
		"error", err)
}

// post performs one attempt. Client errors other than 429 are not retried.
func (d *Dispatcher) post(job delivery) error {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, job.eventType)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("webhook: endpoint rejected delivery with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}
