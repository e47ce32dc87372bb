package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/conductor/internal/db"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, store *db.TurnStore) {
	router.GET("/", handleIndex())
	router.GET("/api/conversations", handleConversations(store))
	router.GET("/api/turns", handleTurns(store))
	router.GET("/api/events", handleSSE(store, ssePollInterval, sseHeartbeatInterval))
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page": "dashboard",
		})
	}
}

func handleConversations(store *db.TurnStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		convs, err := store.Conversations()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, convs)
	}
}

func handleTurns(store *db.TurnStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		turns, err := store.RecentTurns(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, turns)
	}
}
