package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mineduel/internal/logger"
	"mineduel/internal/service"
)

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}

// HandleWS upgrades a player/spectator connection. The player channel is
// unauthenticated; identity is the connection itself.
func HandleWS(hub *Hub) gin.HandlerFunc {
	upgrader := newUpgrader(hub.cfg.AllowedOrigin)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "err", err)
			return
		}

		client := newClient(hub.nextConnID(), conn, hub, false)
		hub.Register(client)
		go client.Run()
	}
}

// HandleAdminWS upgrades an admin connection. Requires a valid admin token
// in the query string before the upgrade happens.
func HandleAdminWS(hub *Hub, auth *service.AdminAuth) gin.HandlerFunc {
	upgrader := newUpgrader(hub.cfg.AllowedOrigin)
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		if _, err := auth.Verify(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "auth failed"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("admin ws upgrade failed", "err", err)
			return
		}

		client := newClient(hub.nextConnID(), conn, hub, true)
		hub.Register(client)
		go client.Run()
	}
}
