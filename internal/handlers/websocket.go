package handlers

import (
	"log"

	"github.com/gofiber/contrib/websocket"
)

// Progress streams job progress events to a WebSocket client as JSON.
// The connection also drains client messages so pings keep working.
func (h *Handler) Progress(c *websocket.Conn) {
	events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(events)

	// Reader goroutine: detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				log.Printf("⚠️  [WS] Failed to write progress event: %v", err)
				return
			}
		}
	}
}
