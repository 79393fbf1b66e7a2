package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/squadscrape/squadpanel/internal/logsink"
	"github.com/squadscrape/squadpanel/internal/server"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

type EventsHandlerParams struct {
	fx.In

	Sink *logsink.Sink
	Http server.HttpConfig
	Log  *zap.Logger
}

// EventsHandler streams the panel log to websocket clients.
type EventsHandler struct {
	sink     *logsink.Sink
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewEventsHandler(params EventsHandlerParams) *EventsHandler {
	origins := params.Http.Cors.AllowedOrigins

	return &EventsHandler{
		sink: params.Sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
		log: params.Log.Named("events"),
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		sub:  h.sink.Subscribe(logsink.DefaultBuffer),
		log:  h.log.With(zap.String("remote", r.RemoteAddr)),
	}

	c.log.Debug("client connected")

	go c.writePump()
	go c.readPump()
}

// client is a middleman between the websocket connection and the sink.
type client struct {
	conn *websocket.Conn
	sub  *logsink.Subscription
	log  *zap.Logger
}

// readPump discards incoming messages and ends the subscription
// once the peer goes away.
func (c *client) readPump() {
	defer c.sub.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.log.Debug("client disconnected", zap.Error(err))
			return
		}
	}
}

// writePump pumps events from the sink to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the sink closed or evicted the subscription
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			enc := json.NewEncoder(w)
			enc.Encode(evt)

			// add queued events to the current message
			n := len(c.sub.Events())
			for i := 0; i < n; i++ {
				evt, ok := <-c.sub.Events()
				if !ok {
					break
				}
				enc.Encode(evt)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
