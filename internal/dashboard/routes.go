package dashboard

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	// Pages.
	router.GET("/", handleIndex(db))
	router.GET("/calls", handleCallList(db))
	router.GET("/calls/:id", handleCallDetail(db))

	// JSON stats for polling clients.
	router.GET("/api/stats", handleStats(db))

	// SSE feed of new bookings.
	router.GET("/api/events", handleSSE(db))
}

func handleIndex(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcomes, err := OutcomeSummary(db)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		booked, err := BookedSummary(db)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		days, err := BookingsByDay(db, 14)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		lanes, err := TopLanes(db, 5)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		activeLoads, err := ActiveLoadCount(db)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}

		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page":        "dashboard",
			"outcomes":    outcomes,
			"booked":      booked.Booked,
			"avgRounds":   booked.AvgRounds,
			"revenue":     booked.RevenueCents.String(),
			"days":        days,
			"lanes":       lanes,
			"activeLoads": activeLoads,
		})
	}
}

func handleCallList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		calls, err := RecentCalls(db, 50)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed: %v", err)
			return
		}
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page":  "calls",
			"calls": calls,
		})
	}
}

func handleCallDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := CallDetail(db, c.Param("id"))
		if err != nil {
			c.String(http.StatusNotFound, "call not found")
			return
		}
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page":      "call-detail",
			"call":      rec,
			"listed":    rec.ListedRateCents.String(),
			"finalRate": rec.FinalRateCents.String(),
		})
	}
}

func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcomes, err := OutcomeSummary(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		booked, err := BookedSummary(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		activeLoads, err := ActiveLoadCount(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"outcomes":     outcomes,
			"booked":       booked.Booked,
			"avg_rounds":   booked.AvgRounds,
			"revenue":      booked.RevenueCents.String(),
			"active_loads": activeLoads,
		})
	}
}
