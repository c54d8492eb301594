package handler

import (
	"net/http"
	"slices"
	"time"

	"storyteller-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения, разрешенный от клиента.
	maxMessageSize = 512
)

func (h *StoryHandler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin пропускает запросы без Origin и с Origin из CORS_ALLOWED_ORIGINS.
func (h *StoryHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin)
}

// ServeWS открывает WebSocket и отправляет клиенту каждый опубликованный снимок.
func (h *StoryHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже записал ответ с ошибкой
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	snapshots, unsubscribe := h.planets.Subscribe()
	logger := h.logger.With(zap.String("remoteAddr", c.Request.RemoteAddr))
	logger.Info("WebSocket connection established")

	go writePump(conn, snapshots, logger)
	go readPump(conn, unsubscribe, logger)
}

// readPump читает соединение до ошибки, чтобы обрабатывать pong и close.
// Сообщения клиента игнорируются.
func readPump(conn *websocket.Conn, unsubscribe func(), logger *zap.Logger) {
	defer func() {
		unsubscribe()
		_ = conn.Close()
		logger.Debug("readPump finished")
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			} else {
				logger.Info("WebSocket connection closed")
			}
			return
		}
		logger.Debug("Received unexpected message from client (ignored)")
	}
}

// writePump отправляет снимки и пинги. Закрытый канал снимков закрывает соединение.
func writePump(conn *websocket.Conn, snapshots <-chan models.Snapshot, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		logger.Debug("writePump finished")
	}()

	for {
		select {
		case snap, ok := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				logger.Warn("Failed to write snapshot", zap.Error(err))
				return
			}
			logger.Debug("Snapshot sent", zap.Uint64("generation", snap.Generation), zap.Bool("loading", snap.Loading))

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
