package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"nhbvault/core/events"
	"nhbvault/crypto"
)

func testAccount() crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[19] = 7
	return crypto.MustNewAddress(crypto.NHBPrefix, raw)
}

func TestDispatcherSignsPayload(t *testing.T) {
	secret := []byte("secret")
	var (
		mu        sync.Mutex
		body      []byte
		signature string
		eventType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		body, signature, eventType = data, r.Header.Get(SignatureHeader), r.Header.Get(EventHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(events.NewDepositNative(testAccount(), uint256.NewInt(10), uint256.NewInt(2000)))
	waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signature != ""
	}, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if !Verify(secret, body, signature) {
		t.Fatalf("signature %q does not verify", signature)
	}
	if eventType != events.TypeDepositNative {
		t.Fatalf("unexpected event header %q", eventType)
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Attributes["amount"] != "10" || payload.DeliveryID == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(events.NewDepositStable(testAccount(), uint256.NewInt(5))); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	if err := dispatcher.Enqueue(events.NewDepositStable(testAccount(), uint256.NewInt(5))); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)
	dispatcher.Close()
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
	if err := dispatcher.Enqueue(events.NewDepositStable(testAccount(), uint256.NewInt(5))); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestDispatcherFiltersTypes(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithTypes(events.TypeWithdrawNative))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Emit(events.NewDepositStable(testAccount(), uint256.NewInt(1)))
	dispatcher.Emit(events.NewWithdrawNative(testAccount(), uint256.NewInt(1), uint256.NewInt(2)))
	waitFor(func() bool { return atomic.LoadInt32(&received) >= 1 }, time.Second)
	dispatcher.Close()
	if got := atomic.LoadInt32(&received); got != 1 {
		t.Fatalf("expected one delivery, got %d", got)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithQueueSize(1))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	evt := events.NewDepositStable(testAccount(), uint256.NewInt(1))
	var full bool
	for i := 0; i < 10 && !full; i++ {
		full = dispatcher.Enqueue(evt) == ErrQueueFull
	}
	if !full {
		t.Fatalf("expected queue to fill")
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("s")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://hooks", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
