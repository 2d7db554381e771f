package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/middleware"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

type AdminAuthHandler struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
	Guard       *auth.LoginGuard
}

type loginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createAdminBody struct {
	Username string `json:"username" binding:"required,username"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Role     string `json:"role" binding:"omitempty,oneof=admin superadmin"`
}

func adminView(a model.Admin) gin.H {
	return gin.H{"username": a.Username, "role": a.Role, "createdAt": a.CreatedAt}
}

func lockoutMessage(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes == 1 {
		return "Too many failed attempts. Try again in 1 minute."
	}
	return fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", minutes)
}

func (h *AdminAuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, "Username and password required")
		return
	}

	ip := c.ClientIP()
	if remaining, locked := h.Guard.Locked(ip); locked {
		abortJSON(c, http.StatusTooManyRequests, lockoutMessage(remaining))
		return
	}

	ctx := c.Request.Context()
	admin, err := h.Store.AdminByUsername(ctx, body.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		internalError(c, err, "admin lookup failed")
		return
	}
	if err != nil || auth.CheckPassword(admin.PasswordHash, body.Password) != nil {
		logging.Ctx(ctx).Warn().Str("username", body.Username).Str("ip", ip).Msg("admin login failed")
		if h.Guard.Fail(ip) {
			remaining, _ := h.Guard.Locked(ip)
			abortJSON(c, http.StatusTooManyRequests, lockoutMessage(remaining))
			return
		}
		abortJSON(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	h.Guard.Reset(ip)

	token, err := auth.CreateToken(admin.Username, admin.Role, h.TokenConfig)
	if err != nil {
		internalError(c, err, "token creation failed")
		return
	}
	logging.Ctx(ctx).Info().Str("username", admin.Username).Msg("admin logged in")
	c.JSON(http.StatusOK, gin.H{"token": token, "admin": gin.H{"username": admin.Username, "role": admin.Role}})
}

func (h *AdminAuthHandler) Me(c *gin.Context) {
	a, _ := middleware.AdminFromContext(c)
	c.JSON(http.StatusOK, gin.H{"admin": gin.H{"username": a.Username, "role": a.Role}})
}

func (h *AdminAuthHandler) ListAdmins(c *gin.Context) {
	admins, err := h.Store.ListAdmins(c.Request.Context())
	if err != nil {
		internalError(c, err, "list admins failed")
		return
	}
	resp := make([]gin.H, 0, len(admins))
	for _, a := range admins {
		resp = append(resp, adminView(a))
	}
	c.JSON(http.StatusOK, gin.H{"admins": resp})
}

func (h *AdminAuthHandler) CreateAdmin(c *gin.Context) {
	var body createAdminBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, "Username (letters, digits, underscore) and a password of at least 8 characters required")
		return
	}
	if body.Role == "" {
		body.Role = model.RoleAdmin
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		internalError(c, err, "hash password failed")
		return
	}
	admin := model.Admin{Username: body.Username, PasswordHash: hash, Role: body.Role, CreatedAt: time.Now().UTC()}
	if err := h.Store.CreateAdmin(c.Request.Context(), admin); err != nil {
		if errors.Is(err, store.ErrConflict) {
			abortJSON(c, http.StatusConflict, "Admin already exists")
			return
		}
		internalError(c, err, "create admin failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Admin created", "admin": adminView(admin)})
}

func (h *AdminAuthHandler) DeleteAdmin(c *gin.Context) {
	username := c.Param("username")
	if me, _ := middleware.AdminFromContext(c); me.Username == username {
		abortJSON(c, http.StatusBadRequest, "Cannot delete your own account")
		return
	}
	if err := h.Store.DeleteAdmin(c.Request.Context(), username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortJSON(c, http.StatusNotFound, "Admin not found")
			return
		}
		internalError(c, err, "delete admin failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Admin deleted"})
}
