package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"guildkeeper/pkg/plugin"
)

const (
	eventBuffer    = 64
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type eventMessage struct {
	Type  string                 `json:"type"` // "connected", "lifecycle"
	Event *plugin.LifecycleEvent `json:"event,omitempty"`
	Time  int64                  `json:"time"`
}

// handleEvents streams plugin lifecycle events over a WebSocket.
func (s *Server) handleEvents(c *echo.Context) error {
	// Browsers cannot set headers on WebSocket requests.
	claims, err := s.parseToken(c.QueryParam("token"))
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid token")
	}
	if kind, _ := claims["kind"].(string); kind != kindAdmin && kind != kindDiscord {
		return errorJSON(c, http.StatusUnauthorized, "invalid token")
	}

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("Dashboard event WS upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	events := make(chan plugin.LifecycleEvent, eventBuffer)
	cancel := s.plugins.Subscribe(func(ev plugin.LifecycleEvent) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("Dashboard event stream is behind, dropping event",
				zap.String("plugin", ev.Plugin),
				zap.String("type", string(ev.Type)))
		}
	})
	defer cancel()

	if err := writeEvent(conn, eventMessage{Type: "connected", Time: time.Now().Unix()}); err != nil {
		return nil
	}

	// The read loop only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn("Dashboard event WS read error", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if err := writeEvent(conn, eventMessage{Type: "lifecycle", Event: &ev, Time: time.Now().Unix()}); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func writeEvent(conn *websocket.Conn, msg eventMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
