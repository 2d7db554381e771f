package handler

import (
	"context"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

const recentUserWindow = 30 * 24 * time.Hour

type AdminStatsHandler struct {
	Store store.Store
	Now   func() time.Time
}

type leaderboardQuery struct {
	Type     string `form:"type" binding:"required,oneof=fish crab"`
	Gamemode string `form:"gamemode" binding:"required,gamemode"`
}

type leaderboardEntry struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Count    int    `json:"count"`
}

func (h *AdminStatsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AdminStatsHandler) allUsers(ctx context.Context) ([]model.User, error) {
	users, _, err := h.Store.ListUsers(ctx, store.UserQuery{})
	return users, err
}

func (h *AdminStatsHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.allUsers(ctx)
	if err != nil {
		internalError(c, err, "list users failed")
		return
	}
	recent, err := h.Store.CountUsersSince(ctx, h.now().Add(-recentUserWindow))
	if err != nil {
		internalError(c, err, "count users failed")
		return
	}

	fishBy := make(map[string]int, len(model.Gamemodes))
	crabsBy := make(map[string]int, len(model.Gamemodes))
	totalFish, totalCrabs := 0, 0
	for _, gm := range model.Gamemodes {
		for _, u := range users {
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
			fishBy[gm] += nf
			crabsBy[gm] += nc
		}
		totalFish += fishBy[gm]
		totalCrabs += crabsBy[gm]
	}

	avg := func(total int) int {
		if len(users) == 0 {
			return 0
		}
		return int(math.Round(float64(total) / float64(len(users))))
	}

	c.JSON(http.StatusOK, gin.H{
		"totalUsers":      len(users),
		"recentUsers":     recent,
		"totalFish":       totalFish,
		"totalCrabs":      totalCrabs,
		"avgFishPerUser":  avg(totalFish),
		"avgCrabsPerUser": avg(totalCrabs),
		"fishByGamemode":  fishBy,
		"crabsByGamemode": crabsBy,
	})
}

// Leaderboard ranks every user by catch count, ties broken by name.
func (h *AdminStatsHandler) Leaderboard(c *gin.Context) {
	var q leaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortJSON(c, http.StatusBadRequest, "type (fish or crab) and a valid gamemode required")
		return
	}

	ctx := c.Request.Context()
	users, err := h.allUsers(ctx)
	if err != nil {
		internalError(c, err, "list users failed")
		return
	}

	board := make([]leaderboardEntry, 0, len(users))
	for _, u := range users {
		n, err := h.Store.CountCatches(ctx, model.Namespace{Kind: model.Kind(q.Type), User: u.Name, Gamemode: q.Gamemode})
		if err != nil {
			internalError(c, err, "count catches failed")
			return
		}
		board = append(board, leaderboardEntry{UserID: u.ID, UserName: u.Name, Count: n})
	}
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Count != board[j].Count {
			return board[i].Count > board[j].Count
		}
		return board[i].UserName < board[j].UserName
	})

	c.JSON(http.StatusOK, gin.H{"type": q.Type, "gamemode": q.Gamemode, "leaderboard": board})
}
