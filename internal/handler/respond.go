package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/gate"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
	"fish-tracker/internal/rarity"
)

const invalidGamemodeMessage = "Invalid gamemode. Must be one of: oneblock, earth, survival, factions, boxsmp"

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func internalError(c *gin.Context, err error, msg string) {
	logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	abortJSON(c, http.StatusInternalServerError, "Internal server error")
}

// gateStatus maps a gate rejection to its response. Authenticity failures
// other than shape errors share one public message.
func gateStatus(err error) (int, gin.H) {
	switch gate.ClassOf(err) {
	case gate.ClassClientInput:
		return http.StatusBadRequest, gin.H{"error": clientInputMessage(err)}
	case gate.ClassNotFound:
		return http.StatusNotFound, gin.H{"error": "User not found"}
	case gate.ClassAuthenticity:
		var se *gate.ShapeError
		if errors.As(err, &se) {
			return http.StatusBadRequest, gin.H{"error": "Invalid data", "expected": se.Expected}
		}
		if errors.Is(err, gate.ErrBadJSON) {
			return http.StatusBadRequest, gin.H{"error": "Invalid decrypted JSON"}
		}
		return http.StatusBadRequest, gin.H{"error": "Decryption failed or invalid token"}
	case gate.ClassServerIntegrity:
		return http.StatusInternalServerError, gin.H{"error": "User record incomplete (missing name or fernetKey)"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Internal server error"}
	}
}

func clientInputMessage(err error) string {
	switch {
	case errors.Is(err, gate.ErrMissingUser):
		return "Missing user ID in query params"
	case errors.Is(err, gate.ErrEmptyToken):
		return "Request body must contain a token"
	case errors.Is(err, gate.ErrInvalidGamemode):
		return invalidGamemodeMessage
	default:
		return "Invalid request"
	}
}

type catchView struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Gamemode  string    `json:"gamemode"`
	Kind      string    `json:"kind"`
	Fish      string    `json:"fish"`
	Rarity    *int      `json:"rarity,omitempty"`
	Label     string    `json:"rarityLabel,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// publishCatch pushes an accepted catch to the admin live feed.
func publishCatch(ctx context.Context, h *hub.Hub, ns model.Namespace, c model.Catch, source string) {
	view := catchView{
		ID:        c.ID,
		User:      ns.User,
		Gamemode:  ns.Gamemode,
		Kind:      string(ns.Kind),
		Fish:      c.Fish,
		Rarity:    c.Rarity,
		Source:    source,
		Timestamp: c.Timestamp,
	}
	if c.Rarity != nil {
		view.Label = rarity.Label(*c.Rarity)
	}
	if err := h.Publish(hub.AdminChannel, hub.Event{Type: "catch", Body: view}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("live feed publish failed")
	}
}
