package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/store"
)

const (
	serviceName = "fish-tracker-api"
	Version     = "1.0.0"
)

type StatusHandler struct {
	Store   store.Store
	Started time.Time
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *StatusHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := h.Store.Ping(ctx); err != nil {
		database = "disconnected"
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       database == "connected",
		"service":  serviceName,
		"database": database,
		"version":  Version,
		"uptime":   int64(time.Since(h.Started).Seconds()),
	})
}
