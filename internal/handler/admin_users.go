package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

const (
	defaultPageSize     = 20
	maxPageSize         = 100
	adminPasswordLength = 12
)

type AdminUserHandler struct {
	Store store.Store
	Now   func() time.Time
}

type createUserBody struct {
	Name     string `json:"name" binding:"required,username"`
	Password string `json:"password" binding:"omitempty,min=4,max=128"`
}

func userView(u model.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "createdAt": u.CreatedAt, "hasKey": u.Key != ""}
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *AdminUserHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AdminUserHandler) List(c *gin.Context) {
	page := positiveInt(c.Query("page"), 1)
	limit := positiveInt(c.Query("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	users, total, err := h.Store.ListUsers(c.Request.Context(), store.UserQuery{
		Search: c.Query("search"),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		internalError(c, err, "list users failed")
		return
	}

	resp := make([]gin.H, 0, len(users))
	for _, u := range users {
		resp = append(resp, userView(u))
	}
	c.JSON(http.StatusOK, gin.H{
		"users":      resp,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": (total + limit - 1) / limit,
	})
}

// loadUser resolves the :id path parameter, writing the error response itself.
func loadUser(c *gin.Context, s store.Store) (model.User, bool) {
	u, err := s.UserByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		abortJSON(c, http.StatusNotFound, "User not found")
		return model.User{}, false
	}
	if err != nil {
		internalError(c, err, "user lookup failed")
		return model.User{}, false
	}
	return u, true
}

func (h *AdminUserHandler) Get(c *gin.Context) {
	u, ok := loadUser(c, h.Store)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fish := gin.H{}
	crabs := gin.H{}
	for _, gm := range model.Gamemodes {
		nf, err := h.Store.CountCatches(ctx, model.Namespace{Kind: model.KindFish, User: u.Name, Gamemode: gm})
		if err != nil {
			internalError(c, err, "count catches failed")
			return
		}
		nc, err := h.Store.CountCatches(ctx, model.Namespace{Kind: model.KindCrab, User: u.Name, Gamemode: gm})
		if err != nil {
			internalError(c, err, "count catches failed")
			return
		}
		fish[gm] = nf
		crabs[gm] = nc
	}

	view := userView(u)
	view["fishByGamemode"] = fish
	view["crabsByGamemode"] = crabs
	c.JSON(http.StatusOK, gin.H{"user": view})
}

// Create provisions a user. The password and key are only ever returned here
// and by Reset.
func (h *AdminUserHandler) Create(c *gin.Context) {
	var body createUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, invalidUserNameMessage)
		return
	}

	provisionUser(c, h.Store, body, adminPasswordLength, h.now())
}

// Reset rotates a user's password (?type=password) or key (?type=key). A new
// key invalidates every token sealed with the old one.
func (h *AdminUserHandler) Reset(c *gin.Context) {
	resetType := c.Query("type")
	if resetType != "password" && resetType != "key" && resetType != "fernet" {
		abortJSON(c, http.StatusBadRequest, "Invalid reset type. Must be password or key")
		return
	}
	u, ok := loadUser(c, h.Store)
	if !ok {
		return
	}

	resp := gin.H{}
	if resetType == "password" {
		password, err := auth.NewPassword(externalPasswordLength)
		if err != nil {
			internalError(c, err, "generate password failed")
			return
		}
		if u.PasswordHash, err = auth.HashPassword(password); err != nil {
			internalError(c, err, "hash password failed")
			return
		}
		resp["message"] = "Password reset"
		resp["newPassword"] = password
	} else {
		key, err := auth.NewUserKey()
		if err != nil {
			internalError(c, err, "generate key failed")
			return
		}
		u.Key = key
		resp["message"] = "Fernet key reset"
		resp["newFernetKey"] = key
	}

	if err := h.Store.UpdateUser(c.Request.Context(), u); err != nil {
		internalError(c, err, "update user failed")
		return
	}
	logging.Ctx(c.Request.Context()).Info().Str("user", u.Name).Str("type", resetType).Msg("user credentials reset")
	c.JSON(http.StatusOK, resp)
}

func (h *AdminUserHandler) Delete(c *gin.Context) {
	u, ok := loadUser(c, h.Store)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	// Catches go first so a failed purge leaves the user in place for a retry.
	if err := h.Store.PurgeUserCatches(ctx, u.Name); err != nil {
		internalError(c, err, "purge catches failed")
		return
	}
	if err := h.Store.DeleteUser(ctx, u.ID); err != nil {
		internalError(c, err, "delete user failed")
		return
	}
	logging.Ctx(ctx).Info().Str("user", u.Name).Msg("user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "User and all associated data deleted"})
}
