// Package coresession is the WebSocket client connecting to the upstream
// Core Bot Service in either legacy or API-client mode, with automatic
// reconnect (exponential backoff) and an outbound size guard.
package coresession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 2 * time.Minute

	// MaxMessageSizeBytes is the spec's 95 MiB outbound drop ceiling.
	MaxMessageSizeBytes = 95 * 1024 * 1024
	// WarnMessageSizeBytes is the spec's 1 MiB outbound warn threshold.
	WarnMessageSizeBytes = 1 * 1024 * 1024
)

// Handler receives inbound MessageBase envelopes converted to the
// internal representation, regardless of which wire mode produced them.
type Handler func(msg seg.MessageBase)

// Session is the Core-facing WebSocket client.
type Session struct {
	log     *slog.Logger
	cfg     config.CoreConfig
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	dialer  *websocket.Dialer
	stopped chan struct{}

	// writeMu serializes WriteMessage calls across Send/SendCustom, since
	// gorilla/websocket permits only one concurrent writer per connection
	// and both methods are called from independent goroutines.
	writeMu sync.Mutex
}

// New constructs a Session for the given Core config. handler is invoked
// for every inbound message once converted to the internal envelope.
func New(log *slog.Logger, cfg config.CoreConfig, handler Handler) *Session {
	return &Session{
		log:     log,
		cfg:     cfg,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		stopped: make(chan struct{}),
	}
}

func (s *Session) url() string {
	if s.cfg.Mode == config.CoreModeAPIClient {
		return s.cfg.BaseURL
	}
	return fmt.Sprintf("ws://%s:%d/ws", s.cfg.Host, s.cfg.Port)
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled. Reconnection is this Session's own responsibility per the
// spec's failure semantics.
func (s *Session) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			s.log.Warn("core session disconnected, reconnecting", "err", err, "attempt", attempt)
		}
		attempt++

		delay := backoff(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * baseReconnectDelay
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

func (s *Session) runOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url(), s.authHeaders())
	if err != nil {
		return fmt.Errorf("dial core service: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := s.decodeInbound(data)
		if err != nil {
			s.log.Warn("core session received malformed envelope", "err", err)
			continue
		}
		s.handler(msg)
	}
}

// Send serializes msg according to the active mode and writes it to the
// current connection, applying the two-tier size guard.
func (s *Session) Send(msg seg.MessageBase) bool {
	payload, err := s.encodeOutbound(msg)
	if err != nil {
		s.log.Error("core session failed to encode outbound message", "err", err)
		return false
	}

	size := len(payload)
	if size > MaxMessageSizeBytes {
		s.log.Error("outbound message exceeds size limit, dropping",
			"size_mb", float64(size)/1024/1024,
			"platform", msg.MessageInfo.Platform)
		return false
	}
	if size > WarnMessageSizeBytes {
		s.log.Warn("outbound message is large", "size_mb", float64(size)/1024/1024)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.log.Error("core session send failed", "err", err)
		return false
	}
	return true
}

// SendCustom sends an arbitrary JSON-shaped message (used for
// command_response envelopes and message_sent_back notifications) without
// going through the MessageBase conversion.
func (s *Session) SendCustom(v map[string]any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("core session failed to encode custom message", "err", err)
		return false
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Error("core session custom send failed", "err", err)
		return false
	}
	return true
}

func (s *Session) authHeaders() map[string][]string {
	if s.cfg.Mode != config.CoreModeAPIClient || s.cfg.APIKey == "" {
		return nil
	}
	return map[string][]string{"Authorization": {"Bearer " + s.cfg.APIKey}}
}
