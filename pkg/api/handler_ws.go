package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler handles GET /ws: upgrades the connection and hands it to the
// ConnectionManager, which blocks until the client disconnects.
func (s *Server) wsHandler(c *gin.Context) {
	if s.deps.Manager == nil {
		respondError(c, http.StatusServiceUnavailable, "WS_UNAVAILABLE", "WebSocket not available")
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.deps.Config.AllowedWSOrigins) > 0 {
		opts.OriginPatterns = s.deps.Config.AllowedWSOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return
	}
	s.deps.Manager.HandleConnection(c.Request.Context(), conn)
}
