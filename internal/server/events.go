package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	eventNameMutation  = "mutation"
	eventNameHeartbeat = "heartbeat"
	heartbeatInterval  = 25 * time.Second
)

type mutationEventPayload struct {
	Kind        string    `json:"kind"`
	AnnouncedAt time.Time `json:"announced_at"`
}

// handleEvents streams mutation announcements over server-sent events. The
// stream carries only the mutation kind; clients re-run their initial page
// fetch rather than patching in place.
func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	events, cleanup := h.broadcaster.Subscribe(ctx)
	defer cleanup()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(eventNameMutation, mutationEventPayload{
				Kind:        event.Kind.String(),
				AnnouncedAt: event.AnnouncedAt,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(eventNameHeartbeat, gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
