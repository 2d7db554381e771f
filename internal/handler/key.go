package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/store"
)

// KeyHandler hands a user their Fernet key in exchange for HTTP Basic
// credentials.
type KeyHandler struct {
	Store store.Store
}

func (h *KeyHandler) Get(c *gin.Context) {
	if len(c.Request.URL.Query()) > 0 {
		abortJSON(c, http.StatusBadRequest, "This endpoint requires HTTP Basic Auth; query params are not allowed.")
		return
	}

	header := c.GetHeader("Authorization")
	if len(header) < 6 || !strings.EqualFold(header[:6], "basic ") {
		abortJSON(c, http.StatusUnauthorized, "Authorization header with Basic credentials required")
		return
	}
	name, password, ok := c.Request.BasicAuth()
	if !ok {
		abortJSON(c, http.StatusUnauthorized, "Invalid authorization format")
		return
	}

	user, err := h.Store.UserByName(c.Request.Context(), name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("key lookup failed")
		abortJSON(c, http.StatusInternalServerError, "Database query failed")
		return
	}
	if err != nil || user.Key == "" || auth.CheckPassword(user.PasswordHash, password) != nil {
		abortJSON(c, http.StatusNotFound, "User not found or invalid password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"fernetKey": user.Key})
}
