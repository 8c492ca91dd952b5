package handlers

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/orders"
)

const keepAliveInterval = 25 * time.Second

// TrackOrder streams the order as server-sent events: an "order" event with
// the current snapshot, one per change, then "deleted" or "error" when the
// stream ends for a reason other than the client leaving.
func TrackOrder(log *slog.Logger, subscribe SubscribeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id/track"

		sub, err := subscribe(c.Request.Context(), middleware.Session(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		defer sub.Close()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case order, ok := <-sub.Updates():
				if !ok {
					switch err := sub.Err(); {
					case errors.Is(err, orders.ErrOrderDeleted):
						c.SSEvent("deleted", gin.H{"orderId": c.Param("id")})
					case err != nil:
						log.WarnContext(c.Request.Context(), "order stream failed", slog.String("error", err.Error()))
						c.SSEvent("error", gin.H{"error": "stream interrupted"})
					}
					return false
				}
				c.SSEvent("order", order)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", time.Now().UTC().Unix())
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
