package inbound

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MetaHandler tracks the last heartbeat timestamp and expected interval
// advertised by the gateway, and runs a watchdog that flags a suspected
// disconnection when no heartbeat has arrived within 2x the interval.
type MetaHandler struct {
	log *slog.Logger

	mu            sync.Mutex
	lastHeartbeat time.Time
	interval      time.Duration

	watchdogCancel context.CancelFunc
}

// NewMetaHandler constructs a MetaHandler.
func NewMetaHandler(log *slog.Logger) *MetaHandler {
	return &MetaHandler{log: log}
}

// HandleMetaEvent processes a decoded meta_event frame.
func (h *MetaHandler) HandleMetaEvent(ctx context.Context, frame map[string]any) {
	metaType, _ := frame["meta_event_type"].(string)
	switch metaType {
	case "lifecycle":
		sub, _ := frame["sub_type"].(string)
		if sub == "connect" {
			h.log.Info("gateway lifecycle connect received")
			h.startWatchdog(ctx)
		}
	case "heartbeat":
		h.handleHeartbeat(frame)
	}
}

func (h *MetaHandler) handleHeartbeat(frame map[string]any) {
	status, _ := frame["status"].(map[string]any)
	online, _ := status["online"].(bool)
	good, _ := status["good"].(bool)

	if !online || !good {
		h.log.Warn("gateway heartbeat reports unhealthy status", "online", online, "good", good)
		return
	}

	intervalMs := asFloat(frame["interval"])

	h.mu.Lock()
	h.lastHeartbeat = time.Now()
	if intervalMs > 0 {
		h.interval = time.Duration(intervalMs) * time.Millisecond
	}
	h.mu.Unlock()
}

func (h *MetaHandler) startWatchdog(ctx context.Context) {
	h.mu.Lock()
	if h.watchdogCancel != nil {
		h.watchdogCancel()
	}
	wctx, cancel := context.WithCancel(ctx)
	h.watchdogCancel = cancel
	h.lastHeartbeat = time.Now()
	h.mu.Unlock()

	go h.watchdogLoop(wctx)
}

func (h *MetaHandler) watchdogLoop(ctx context.Context) {
	for {
		h.mu.Lock()
		interval := h.interval
		h.mu.Unlock()
		if interval <= 0 {
			interval = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		h.mu.Lock()
		last := h.lastHeartbeat
		cur := h.interval
		h.mu.Unlock()
		if cur <= 0 {
			cur = interval
		}

		if time.Since(last) > 2*cur {
			h.log.Error("gateway disconnection suspected: no heartbeat within 2x interval")
			return
		}
	}
}

// Stop terminates any running watchdog.
func (h *MetaHandler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watchdogCancel != nil {
		h.watchdogCancel()
	}
}
