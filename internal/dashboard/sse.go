package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loadline/loadline/internal/models"
	"gorm.io/gorm"
)

// bookingEvent holds data for a booking SSE event.
type bookingEvent struct {
	CallID      string `json:"call_id"`
	CarrierName string `json:"carrier_name"`
	LoadID      string `json:"load_id"`
	FinalRate   string `json:"final_rate"`
	Rounds      int    `json:"rounds"`
	TotalBooked int64  `json:"total_booked"`
}

// handleSSE streams new bookings as they land in the call record table.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		// Send connected event.
		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// If no DB, just send connected and return — tests use nil DB.
		if db == nil {
			return
		}

		// Only alert on bookings recorded after the client connected.
		lastSeen := time.Now().UTC()

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var newRecs []models.CallRecord
				db.Where("outcome = ? AND created_at > ?", "booked", lastSeen).
					Order("created_at ASC").
					Find(&newRecs)

				if len(newRecs) == 0 {
					continue
				}
				lastSeen = newRecs[len(newRecs)-1].CreatedAt

				var total int64
				db.Model(&models.CallRecord{}).
					Where("outcome = ?", "booked").
					Count(&total)

				latest := newRecs[len(newRecs)-1]
				evt := bookingEvent{
					CallID:      latest.CallID,
					CarrierName: latest.CarrierName,
					LoadID:      latest.SelectedLoadID,
					FinalRate:   latest.FinalRateCents.String(),
					Rounds:      latest.NegotiationRounds,
					TotalBooked: total,
				}
				writeSSE(c.Writer, "booking", evt)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
