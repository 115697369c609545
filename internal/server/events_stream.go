package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/workforcelab/intraday/internal/events"
	"github.com/workforcelab/intraday/internal/utils"
)

const (
	// streamBuffer is the per-client queue. A client that cannot drain it
	// loses events rather than stalling the bus.
	streamBuffer = 100

	streamHeartbeat    = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// EventsStreamHandler pushes bus events to websocket clients. Each client
// gets its own buffered queue; slow consumers drop events, they never block
// publishers.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the websocket event stream endpoint.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. The optional types query
// parameter is a comma-separated list of event types to forward; absent
// means everything.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	wanted := make(map[events.EventType]bool)
	for _, t := range utils.ParseCSV(r.URL.Query().Get("types")) {
		wanted[events.EventType(t)] = true
	}

	// Publishers run handlers from their own goroutines, so the drop
	// counter must be atomic.
	queue := make(chan *events.Event, streamBuffer)
	var dropped atomic.Int64
	unsubscribe := h.bus.Subscribe(events.AnyEvent, func(e *events.Event) {
		if len(wanted) > 0 && !wanted[e.Type] {
			return
		}
		select {
		case queue <- e:
		default:
			dropped.Add(1)
		}
	})
	defer unsubscribe()

	// CloseRead runs the reader for us: control frames keep flowing and the
	// context ends when the client hangs up.
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Int("filters", len(wanted)).Msg("Event stream client connected")
	defer func() {
		h.log.Info().Int64("dropped", dropped.Load()).Msg("Event stream client disconnected")
	}()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case e := <-queue:
			if err := h.write(ctx, conn, e); err != nil {
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, e *events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to encode event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
