package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/metrics"
)

const (
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// LiveHandler streams accepted catches to authenticated admins.
type LiveHandler struct {
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
	// CheckOrigin defaults to accepting any origin; the JWT gates access.
	CheckOrigin func(r *http.Request) bool
}

type clientMessage struct {
	Type string `json:"type"`
}

// wsWriter serialises writes; gorilla allows one concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *LiveHandler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		abortJSON(c, http.StatusUnauthorized, "Access token required")
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		abortJSON(c, http.StatusForbidden, "Invalid or expired token")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.CheckOrigin}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{Channel: hub.AdminChannel, Writer: writer}
	h.Hub.Register(conn)
	metrics.TrackLiveConnection(true)
	logging.Ctx(c.Request.Context()).Info().Str("admin", claims.Username).Msg("live feed connected")
	defer func() {
		h.Hub.Unregister(conn)
		metrics.TrackLiveConnection(false)
		_ = ws.Close()
	}()

	ws.SetReadLimit(4 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writer.ping(); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	pong, _ := json.Marshal(hub.Event{Type: "pong"})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writer.Write(pong); err != nil {
				return
			}
		}
	}
}
