package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API binds to loopback by default; browsers on other origins
	// still need a token when auth is enabled
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream handles GET /v1/stream?entity=item, a websocket of hub messages:
// event status changes, conflicts, invalidations and connectivity edges.
// The optional entity filter drops messages about other entity kinds.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	filter := model.Entity(r.URL.Query().Get("entity"))
	if filter != "" && !filter.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown entity "+string(filter))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	msgs, cancel := s.Hub.Subscribe()
	defer cancel()

	logger := log.Ctx(r.Context())
	logger.Debug().Int("subscribers", s.Hub.Subscribers()).Msg("stream opened")

	// the reader only services control frames and notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("stream read error")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	// greet with the current connectivity so clients need not poll
	online := s.online()
	if err := writeFrame(conn, notify.Message{Kind: notify.KindConnectivity, Online: &online, At: time.Now().UTC()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			logger.Debug().Msg("stream closed by client")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if filter != "" && m.Entity != "" && m.Entity != filter {
				continue
			}
			if err := writeFrame(conn, m); err != nil {
				logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, m notify.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(m)
}
