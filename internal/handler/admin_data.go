package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/model"
	"fish-tracker/internal/rarity"
	"fish-tracker/internal/store"
)

// AdminDataHandler manages a user's stored catches directly.
type AdminDataHandler struct {
	Store store.Store
	Hub   *hub.Hub
	Now   func() time.Time
}

type addFishBody struct {
	Name   string `json:"name" binding:"required,max=64"`
	Rarity int    `json:"rarity" binding:"required,min=1,max=7"`
}

type adminFishItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Rarity      int       `json:"rarity"`
	RarityLabel string    `json:"rarityLabel"`
	Timestamp   time.Time `json:"timestamp"`
}

type adminCrabItem struct {
	ID        string    `json:"id"`
	Fish      string    `json:"fish"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *AdminDataHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func fishItemOf(r model.Catch) adminFishItem {
	item := adminFishItem{ID: r.ID, Name: r.Fish, RarityLabel: rarity.Unknown, Timestamp: r.Timestamp}
	if r.Rarity != nil {
		item.Rarity = *r.Rarity
		item.RarityLabel = rarity.Label(*r.Rarity)
	}
	return item
}

// scope resolves the user and the validated ?gamemode= for kind.
func (h *AdminDataHandler) scope(c *gin.Context, kind model.Kind) (model.User, model.Namespace, bool) {
	var q gamemodeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortJSON(c, http.StatusBadRequest, invalidGamemodeMessage)
		return model.User{}, model.Namespace{}, false
	}
	u, ok := loadUser(c, h.Store)
	if !ok {
		return model.User{}, model.Namespace{}, false
	}
	return u, model.Namespace{Kind: kind, User: u.Name, Gamemode: q.Gamemode}, true
}

func (h *AdminDataHandler) ListFish(c *gin.Context) {
	u, ns, ok := h.scope(c, model.KindFish)
	if !ok {
		return
	}
	rows, err := h.Store.ListCatches(c.Request.Context(), ns)
	if err != nil {
		internalError(c, err, "list catches failed")
		return
	}
	fish := make([]adminFishItem, 0, len(rows))
	for _, r := range rows {
		fish = append(fish, fishItemOf(r))
	}
	c.JSON(http.StatusOK, gin.H{"userId": u.ID, "userName": u.Name, "gamemode": ns.Gamemode, "count": len(fish), "fish": fish})
}

func (h *AdminDataHandler) ListCrabs(c *gin.Context) {
	u, ns, ok := h.scope(c, model.KindCrab)
	if !ok {
		return
	}
	rows, err := h.Store.ListCatches(c.Request.Context(), ns)
	if err != nil {
		internalError(c, err, "list catches failed")
		return
	}
	crabs := make([]adminCrabItem, 0, len(rows))
	for _, r := range rows {
		crabs = append(crabs, adminCrabItem{ID: r.ID, Fish: r.Fish, Timestamp: r.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{"userId": u.ID, "userName": u.Name, "gamemode": ns.Gamemode, "count": len(crabs), "crabs": crabs})
}

func (h *AdminDataHandler) AddFish(c *gin.Context) {
	var body addFishBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, "Fish name and a rarity between 1 and 7 required")
		return
	}
	_, ns, ok := h.scope(c, model.KindFish)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	row := model.NewCatch(uuid.NewString(), model.FishCatch{Name: body.Name, Rarity: body.Rarity}, h.now().UTC())
	if err := h.Store.AppendCatch(ctx, ns, row); err != nil {
		internalError(c, err, "append catch failed")
		return
	}
	publishCatch(ctx, h.Hub, ns, row, "admin")
	c.JSON(http.StatusCreated, gin.H{"message": "Fish added", "fish": fishItemOf(row)})
}

func (h *AdminDataHandler) AddCrabs(c *gin.Context) {
	var q countQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortJSON(c, http.StatusBadRequest, "Valid gamemode and a count between 1 and 1000 required")
		return
	}
	if q.Count == 0 {
		q.Count = 1
	}
	_, ns, ok := h.scope(c, model.KindCrab)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	now := h.now().UTC()
	for i := 0; i < q.Count; i++ {
		row := model.NewCatch(uuid.NewString(), model.CrabCatch{}, now)
		if err := h.Store.AppendCatch(ctx, ns, row); err != nil {
			internalError(c, err, "append catch failed")
			return
		}
		publishCatch(ctx, h.Hub, ns, row, "admin")
	}
	c.JSON(http.StatusCreated, gin.H{"message": fmt.Sprintf("%d crab(s) added", q.Count), "added": q.Count})
}

func (h *AdminDataHandler) DeleteFish(c *gin.Context) {
	_, ns, ok := h.scope(c, model.KindFish)
	if !ok {
		return
	}
	if err := h.Store.DeleteCatch(c.Request.Context(), ns, c.Param("fishId")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortJSON(c, http.StatusNotFound, "Fish not found")
			return
		}
		internalError(c, err, "delete catch failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Fish deleted successfully"})
}

// DeleteCrabs removes the oldest ?count= crabs (default 1).
func (h *AdminDataHandler) DeleteCrabs(c *gin.Context) {
	var q countQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortJSON(c, http.StatusBadRequest, "Valid gamemode and a count between 1 and 1000 required")
		return
	}
	if q.Count == 0 {
		q.Count = 1
	}
	_, ns, ok := h.scope(c, model.KindCrab)
	if !ok {
		return
	}

	n, err := h.Store.DeleteCatches(c.Request.Context(), ns, q.Count)
	if err != nil {
		internalError(c, err, "delete catches failed")
		return
	}
	if n == 0 {
		abortJSON(c, http.StatusNotFound, "No crabs to delete")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("%d crab(s) deleted", n), "deleted": n})
}
