package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

const (
	createKeyHeader        = "X-Create-Key"
	externalPasswordLength = 6
	invalidUserNameMessage = "Name must be 1-32 letters, digits or underscores"
)

// provisionUser creates a user with a fresh id and key and writes the one
// response that ever carries the plaintext password. An empty password is
// replaced by a generated one of genLength characters.
func provisionUser(c *gin.Context, s store.Store, body createUserBody, genLength int, now time.Time) {
	password := body.Password
	if password == "" {
		generated, err := auth.NewPassword(genLength)
		if err != nil {
			internalError(c, err, "generate password failed")
			return
		}
		password = generated
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		internalError(c, err, "hash password failed")
		return
	}
	id, err := auth.NewUserID()
	if err != nil {
		internalError(c, err, "generate id failed")
		return
	}
	key, err := auth.NewUserKey()
	if err != nil {
		internalError(c, err, "generate key failed")
		return
	}

	u := model.User{ID: id, Name: body.Name, Key: key, PasswordHash: hash, CreatedAt: now.UTC()}
	if err := s.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			abortJSON(c, http.StatusConflict, "User already exists")
			return
		}
		internalError(c, err, "create user failed")
		return
	}

	logging.Ctx(c.Request.Context()).Info().Str("user", u.Name).Str("id", u.ID).Msg("user created")
	c.JSON(http.StatusCreated, gin.H{"name": u.Name, "id": u.ID, "userPassword": password, "fernetKey": key})
}

// ProvisionHandler creates users for callers holding the shared X-Create-Key.
// An empty APIKey disables the endpoint.
type ProvisionHandler struct {
	Store  store.Store
	APIKey string
	Now    func() time.Time
}

func (h *ProvisionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *ProvisionHandler) authorized(c *gin.Context) bool {
	if h.APIKey == "" {
		return false
	}
	given := c.GetHeader(createKeyHeader)
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.APIKey)) == 1
}

func (h *ProvisionHandler) Create(c *gin.Context) {
	if !h.authorized(c) {
		logging.Ctx(c.Request.Context()).Warn().Str("ip", c.ClientIP()).Msg("user provisioning with bad create key")
		abortJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body createUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if body.Name == "" {
			abortJSON(c, http.StatusBadRequest, "Missing name")
			return
		}
		abortJSON(c, http.StatusBadRequest, invalidUserNameMessage)
		return
	}

	provisionUser(c, h.Store, body, externalPasswordLength, h.now())
}
