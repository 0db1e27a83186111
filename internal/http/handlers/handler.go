package handlers

import (
	"time"

	"mineduel/internal/config"
	"mineduel/internal/service"
)

// Handler carries the REST surface's dependencies. The realtime surface
// lives in the ws package; everything here is plain request/response.
type Handler struct {
	Cfg  *config.Config
	Auth *service.AdminAuth

	startTime time.Time
}

func NewHandler(cfg *config.Config, auth *service.AdminAuth) *Handler {
	return &Handler{
		Cfg:       cfg,
		Auth:      auth,
		startTime: time.Now(),
	}
}
