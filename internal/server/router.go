package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/gate"
	"fish-tracker/internal/handler"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/middleware"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

const (
	defaultIngestRateLimit = 120
	keyRateLimit           = 10
	createUserRateLimit    = 10
	loginMaxAttempts       = 10
	loginCooldown          = 2 * time.Minute
)

type Deps struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
	// TokenTTL bounds the age of accepted submissions; zero is unbounded.
	TokenTTL        time.Duration
	Hub             *hub.Hub
	AllowedOrigins  []string
	IngestRateLimit int
	// CreateUserKey enables POST /create/new/user; empty disables it.
	CreateUserKey string
	Started       time.Time
	Now           func() time.Time
}

// Router is the CORS-wrapped gin engine. Close stops its rate limiters.
type Router struct {
	http.Handler
	limiters []*middleware.RateLimiter
}

func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

// NewRouter builds the gin engine and wraps it in CORS handling.
func NewRouter(deps Deps) *Router {
	engine, limiters := newEngine(deps)
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Gamemode", "X-Create-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	})
	return &Router{Handler: withCORS(engine), limiters: limiters}
}

func newEngine(deps Deps) (*gin.Engine, []*middleware.RateLimiter) {
	if err := handler.RegisterValidators(); err != nil {
		logging.Error().Err(err).Msg("register validators failed")
	}
	if deps.Hub == nil {
		deps.Hub = hub.New()
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	ingestLimit := deps.IngestRateLimit
	if ingestLimit <= 0 {
		ingestLimit = defaultIngestRateLimit
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	statusHandler := &handler.StatusHandler{Store: deps.Store, Started: deps.Started}
	r.GET("/health", statusHandler.Health)
	r.GET("/status", statusHandler.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	catchHandler := &handler.CatchHandler{
		Store: deps.Store,
		Gate:  gate.New(deps.Store, deps.TokenTTL),
		Hub:   deps.Hub,
		Now:   deps.Now,
	}
	ingestLimiter := middleware.NewRateLimiter("ingest", ingestLimit, time.Minute)
	post := r.Group("/post", middleware.RateLimitMiddleware(ingestLimiter))
	post.POST("/fish", catchHandler.Ingest(model.KindFish))
	post.POST("/crab", catchHandler.Ingest(model.KindCrab))

	r.GET("/get/fish", catchHandler.List(model.KindFish))
	r.GET("/get/crab", catchHandler.List(model.KindCrab))

	keyLimiter := middleware.NewRateLimiter("user_key", keyRateLimit, time.Minute)
	keyHandler := &handler.KeyHandler{Store: deps.Store}
	r.GET("/get/user/key", middleware.RateLimitMiddleware(keyLimiter), keyHandler.Get)

	createLimiter := middleware.NewRateLimiter("create_user", createUserRateLimit, time.Minute)
	provisionHandler := &handler.ProvisionHandler{Store: deps.Store, APIKey: deps.CreateUserKey, Now: deps.Now}
	r.POST("/create/new/user", middleware.RateLimitMiddleware(createLimiter), provisionHandler.Create)

	registerAdmin(r, deps)
	return r, []*middleware.RateLimiter{ingestLimiter, keyLimiter, createLimiter}
}

func registerAdmin(r *gin.Engine, deps Deps) {
	authHandler := &handler.AdminAuthHandler{
		Store:       deps.Store,
		TokenConfig: deps.TokenConfig,
		Guard:       auth.NewLoginGuard(loginMaxAttempts, loginCooldown),
	}
	userHandler := &handler.AdminUserHandler{Store: deps.Store, Now: deps.Now}
	dataHandler := &handler.AdminDataHandler{Store: deps.Store, Hub: deps.Hub, Now: deps.Now}
	statsHandler := &handler.AdminStatsHandler{Store: deps.Store, Now: deps.Now}
	liveHandler := &handler.LiveHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig}

	admin := r.Group("/v1/admin")
	admin.POST("/auth/login", authHandler.Login)
	admin.GET("/ws", liveHandler.Serve)

	protected := admin.Group("", middleware.RequireAdmin(deps.TokenConfig))
	superadmin := middleware.RequireRole(model.RoleSuperAdmin)

	protected.GET("/auth/me", authHandler.Me)
	protected.GET("/admins", authHandler.ListAdmins)
	protected.POST("/admins", superadmin, authHandler.CreateAdmin)
	protected.DELETE("/admins/:username", superadmin, authHandler.DeleteAdmin)

	protected.GET("/stats", statsHandler.Stats)
	protected.GET("/leaderboard", statsHandler.Leaderboard)

	protected.GET("/users", userHandler.List)
	protected.POST("/users", userHandler.Create)
	protected.GET("/users/:id", userHandler.Get)
	protected.POST("/users/:id/reset", userHandler.Reset)
	protected.DELETE("/users/:id", superadmin, userHandler.Delete)

	protected.GET("/users/:id/fish", dataHandler.ListFish)
	protected.POST("/users/:id/fish", dataHandler.AddFish)
	protected.DELETE("/users/:id/fish/:fishId", dataHandler.DeleteFish)
	protected.GET("/users/:id/crab", dataHandler.ListCrabs)
	protected.POST("/users/:id/crab", dataHandler.AddCrabs)
	protected.DELETE("/users/:id/crab", dataHandler.DeleteCrabs)
}
