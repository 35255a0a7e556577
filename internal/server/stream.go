package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/hedge/internal/events"
)

const (
	// streamBuffer bounds the per-connection queue; a consumer that falls
	// this far behind starts losing events rather than stalling the bus.
	streamBuffer      = 64
	streamWriteWindow = 10 * time.Second
	heartbeatInterval = 30 * time.Second
)

type streamConn struct {
	events chan *events.Event
	types  map[events.EventType]bool // nil means every type
}

// StreamHandler serves GET /system/events: a websocket feed of bus events.
// It holds one bus subscription for its lifetime and fans out to however
// many connections are registered, so connections come and go without
// touching the bus.
type StreamHandler struct {
	log zerolog.Logger

	mu    sync.Mutex
	conns map[*streamConn]struct{}
}

// NewStreamHandler subscribes to every event type on the bus.
func NewStreamHandler(bus *events.Bus, log zerolog.Logger) *StreamHandler {
	h := &StreamHandler{
		log:   log.With().Str("component", "event_stream").Logger(),
		conns: make(map[*streamConn]struct{}),
	}
	for _, t := range events.AllTypes {
		bus.Subscribe(t, h.fanOut)
	}
	return h
}

func (h *StreamHandler) fanOut(ev *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if conn.types != nil && !conn.types[ev.Type] {
			continue
		}
		select {
		case conn.events <- ev:
		default:
			h.log.Warn().Str("event_type", string(ev.Type)).Msg("Stream client too slow, dropping event")
		}
	}
}

func (h *StreamHandler) register(conn *streamConn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	return len(h.conns)
}

func (h *StreamHandler) unregister(conn *streamConn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
	return len(h.conns)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. An optional ?types=score.updated,alert.triggered filters the feed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "stream aborted")

	conn := &streamConn{
		events: make(chan *events.Event, streamBuffer),
		types:  parseTypeFilter(r.URL.Query().Get("types")),
	}
	clients := h.register(conn)
	defer func() {
		remaining := h.unregister(conn)
		h.log.Debug().Int("clients", remaining).Msg("Stream client disconnected")
	}()
	h.log.Debug().Int("clients", clients).Msg("Stream client connected")

	// The feed is write-only; CloseRead keeps control frames serviced and
	// cancels the context when the peer hangs up.
	ctx := c.CloseRead(r.Context())

	if err := h.write(ctx, c, map[string]interface{}{
		"type":      "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return

		case ev := <-conn.events:
			if err := h.write(ctx, c, ev); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, c, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, c *websocket.Conn, payload interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteWindow)
	defer cancel()
	return wsjson.Write(writeCtx, c, payload)
}

func parseTypeFilter(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	types := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[events.EventType(t)] = true
		}
	}
	if len(types) == 0 {
		return nil
	}
	return types
}
