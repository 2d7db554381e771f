package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"fish-tracker/internal/gate"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/metrics"
	"fish-tracker/internal/model"
	"fish-tracker/internal/rarity"
	"fish-tracker/internal/store"
)

const (
	tokenContentType = "application/octet-stream"
	gamemodeHeader   = "X-Gamemode"
	maxTokenBytes    = 64 << 10
	fishCacheControl = "public, max-age=0, s-maxage=70, stale-while-revalidate=5"
)

// CatchHandler serves the public ingest and read endpoints.
type CatchHandler struct {
	Store store.Store
	Gate  *gate.Gate
	Hub   *hub.Hub
	Now   func() time.Time
}

func (h *CatchHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func requestGamemode(c *gin.Context) string {
	if gm := c.Query("gamemode"); gm != "" {
		return gm
	}
	return c.GetHeader(gamemodeHeader)
}

func kindTitle(kind model.Kind) string {
	if kind == model.KindCrab {
		return "Crab"
	}
	return "Fish"
}

// Ingest accepts a sealed catch of kind for ?id=<user id>.
func (h *CatchHandler) Ingest(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reject := func(err error) {
			reason := gate.Reason(err)
			metrics.RecordIngest(string(kind), reason)
			ev := logging.Ctx(ctx).Warn()
			if gate.ClassOf(err) == gate.ClassInternal || gate.ClassOf(err) == gate.ClassServerIntegrity {
				ev = logging.Ctx(ctx).Error()
			}
			ev.Err(err).Str("kind", string(kind)).Str("reason", reason).Str("user_id", c.Query("id")).Msg("submission rejected")
			status, body := gateStatus(err)
			c.AbortWithStatusJSON(status, body)
		}

		if c.ContentType() != tokenContentType {
			metrics.RecordIngest(string(kind), "bad_content_type")
			abortJSON(c, http.StatusBadRequest, "Content-Type must be "+tokenContentType)
			return
		}
		userID := c.Query("id")
		if userID == "" {
			reject(gate.ErrMissingUser)
			return
		}
		gamemode := requestGamemode(c)
		if !model.ValidGamemode(gamemode) {
			reject(gate.ErrInvalidGamemode)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxTokenBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				metrics.RecordIngest(string(kind), "body_too_large")
				abortJSON(c, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			abortJSON(c, http.StatusBadRequest, "Could not read request body")
			return
		}

		res, err := h.Gate.Open(ctx, kind, userID, body)
		if err != nil {
			reject(err)
			return
		}

		ns := model.Namespace{Kind: kind, User: res.UserName, Gamemode: gamemode}
		row := model.NewCatch(uuid.NewString(), res.Event, h.now().UTC())
		if err := h.Store.AppendCatch(ctx, ns, row); err != nil {
			metrics.RecordIngest(string(kind), "store_failed")
			internalError(c, err, "append catch failed")
			return
		}

		metrics.RecordIngest(string(kind), gate.Reason(nil))
		logging.Ctx(ctx).Info().Str("collection", ns.String()).Str("id", row.ID).Msg("catch saved")
		publishCatch(ctx, h.Hub, ns, row, "api")

		c.JSON(http.StatusCreated, gin.H{
			"message": kindTitle(kind) + " saved for user " + res.UserName,
			"id":      row.ID,
		})
	}
}

type fishItem struct {
	Name       string    `json:"name"`
	Rarity     string    `json:"rarity"`
	RarityCode int       `json:"rarityCode"`
	Timestamp  time.Time `json:"timestamp"`
}

// List returns a user's catches of kind for one gamemode. The user is
// addressed by ?id= or ?name=.
func (h *CatchHandler) List(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if kind == model.KindFish {
			c.Header("Cache-Control", fishCacheControl)
		}

		id, name := c.Query("id"), c.Query("name")
		if id == "" && name == "" {
			abortJSON(c, http.StatusBadRequest, "Missing user ID or name in query params")
			return
		}
		gamemode := requestGamemode(c)
		if !model.ValidGamemode(gamemode) {
			abortJSON(c, http.StatusBadRequest, invalidGamemodeMessage)
			return
		}

		var (
			user model.User
			err  error
		)
		if id != "" {
			user, err = h.Store.UserByID(ctx, id)
		} else {
			user, err = h.Store.UserByName(ctx, name)
		}
		if errors.Is(err, store.ErrNotFound) {
			abortJSON(c, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			internalError(c, err, "user lookup failed")
			return
		}

		rows, err := h.Store.ListCatches(ctx, model.Namespace{Kind: kind, User: user.Name, Gamemode: gamemode})
		if err != nil {
			internalError(c, err, "list catches failed")
			return
		}

		if len(rows) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"user":     user.Name,
				"gamemode": gamemode,
				"message":  "No " + strings.ToLower(kindTitle(kind)) + " found for this user in this gamemode",
			})
			return
		}

		if kind == model.KindCrab {
			crabs := make([]string, len(rows))
			for i, r := range rows {
				crabs[i] = r.Fish
			}
			c.JSON(http.StatusOK, gin.H{"user": user.Name, "gamemode": gamemode, "count": len(crabs), "crabs": crabs})
			return
		}

		fish := make([]fishItem, 0, len(rows))
		for _, r := range rows {
			item := fishItem{Name: r.Fish, Rarity: rarity.Unknown, Timestamp: r.Timestamp}
			if r.Rarity != nil {
				item.RarityCode = *r.Rarity
				item.Rarity = rarity.Label(*r.Rarity)
			}
			fish = append(fish, item)
		}
		c.JSON(http.StatusOK, gin.H{"user": user.Name, "gamemode": gamemode, "count": len(fish), "fish": fish})
	}
}
