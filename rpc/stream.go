package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nhbvault/core/events"
)

const (
	wsWriteTimeout    = 10 * time.Second
	subscriberBacklog = 64
)

// StreamMessage is the websocket frame pushed for every vault event.
type StreamMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"ts"`
}

type subscriber struct {
	ch      chan StreamMessage
	account string
	kind    string
}

func (s *subscriber) wants(msg StreamMessage) bool {
	if s.kind != "" && s.kind != msg.Type {
		return false
	}
	if s.account != "" && s.account != msg.Attributes["account"] {
		return false
	}
	return true
}

// Hub fans vault events out to websocket subscribers. A subscriber whose
// backlog fills up is disconnected.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	now    func() time.Time
	logger *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), now: time.Now, logger: logger}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	msg := StreamMessage{Type: payload.Type, Attributes: payload.Attributes, Timestamp: h.now().Unix()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.wants(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("stream subscriber dropped", "backlog", subscriberBacklog)
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe(account, kind string) (*subscriber, func()) {
	sub := &subscriber{ch: make(chan StreamMessage, subscriberBacklog), account: account, kind: kind}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	account := ""
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		account = addr.String()
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, account, strings.TrimSpace(query.Get("type"))); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, account, kind string) error {
	sub, cancel := s.hub.subscribe(account, kind)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.ch:
			if !ok {
				return conn.Close(websocket.StatusGoingAway, "stream ended")
			}
			if err := writeStreamMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
