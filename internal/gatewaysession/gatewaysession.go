// Package gatewaysession owns the server-side WebSocket that accepts a
// single Bot Gateway connection: bearer-token auth, frame I/O, and a
// clean restart protocol driven by the Supervisor on config change.
package gatewaysession

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxInboundFrameBytes is the spec's 64 MiB inbound frame ceiling.
const MaxInboundFrameBytes = 64 * 1024 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session owns one accepted gateway connection. It exposes Frames (an
// inbound channel of raw decoded frame maps) and Send (for outbound
// frames), and runs until ctx is cancelled or the connection closes.
type Session struct {
	log   *slog.Logger
	host  string
	port  int
	token string

	frames chan map[string]any

	writeMu sync.Mutex
	conn    *websocket.Conn

	srv *http.Server

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Session bound to host:port, checking token on upgrade
// when non-empty.
func New(log *slog.Logger, host string, port int, token string) *Session {
	return &Session{
		log:    log,
		host:   host,
		port:   port,
		token:  token,
		frames: make(chan map[string]any, 256),
		closed: make(chan struct{}),
	}
}

// Frames returns the channel of decoded inbound frames.
func (s *Session) Frames() <-chan map[string]any { return s.frames }

// checkAuth validates the Authorization header per spec §6: missing token
// configured => no check; configured => exact "Bearer <token>" match or
// 401.
func (s *Session) checkAuth(r *http.Request) bool {
	if strings.TrimSpace(s.token) == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *Session) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Unauthorized\n"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("gateway upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(MaxInboundFrameBytes)

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	s.readLoop(conn)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.markClosed()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("gateway connection read ended", "err", err)
			return
		}
		frame, err := decodeFrame(data)
		if err != nil {
			s.log.Warn("gateway sent malformed frame", "err", err)
			continue
		}
		select {
		case s.frames <- frame:
		case <-s.closed:
			return
		}
	}
}

// Run binds host:port and serves until ctx is cancelled or the accepted
// connection closes, tolerating being closed concurrently with an
// in-flight read.
func (s *Session) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Close()
		<-errCh
		return ctx.Err()
	case <-s.closed:
		s.Close()
		return <-errCh
	case err := <-errCh:
		s.markClosed()
		return err
	}
}

// Send serializes and writes frame to the gateway connection, if any is
// currently established.
func (s *Session) Send(frame map[string]any) error {
	s.writeMu.Lock()
	conn := s.conn
	s.writeMu.Unlock()
	if conn == nil {
		return fmt.Errorf("gatewaysession: no active connection")
	}
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Close shuts the listener and any live connection down; safe to call
// more than once and concurrently with reads, satisfying the restart
// protocol's close -> wait_closed -> cancel-reader sequencing.
func (s *Session) Close() {
	s.markClosed()
	s.writeMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.writeMu.Unlock()
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
}
