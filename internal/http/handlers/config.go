package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GameConfig exposes the default game tuning so clients can render the
// room-creation form before opening a websocket.
func (h *Handler) GameConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gridSize":          h.Cfg.GridSize,
		"defaultMinesCount": h.Cfg.DefaultMinesCount,
		"turnTimeLimit":     h.Cfg.TurnTimeLimit,
		"minRevealsToPass":  h.Cfg.MinRevealsToPass,
	})
}
