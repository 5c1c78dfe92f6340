package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/desktopai/runcontrol/internal/logging"
)

// UpdatesHandler upgrades GET /ws/updates into a Broadcast Hub
// subscription: the operator console receives every task/run update the
// composition root forwards to the hub, and sends nothing back.
type UpdatesHandler struct {
	hub      BroadcastHub
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// NewUpdatesHandler constructs an UpdatesHandler.
func NewUpdatesHandler(hub BroadcastHub, logger logging.Logger) *UpdatesHandler {
	return &UpdatesHandler{
		hub:    hub,
		logger: logging.OrNop(logger).With("updates"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection as a
// subscriber until it disconnects or the hub refuses it for capacity.
func (h *UpdatesHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("updates upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, ok := h.hub.Add(conn)
	if !ok {
		return
	}
	defer h.hub.Remove(id)

	// the operator console never sends application messages on this
	// connection; this loop only exists to notice when it disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
