package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func (h *Handler) registerStream(router fiber.Router) {
	router.Use("/graphs/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/graphs/stream", websocket.New(h.streamGraphs))
}

// streamGraphs serves one WebSocket client: a full snapshot first, then every
// graph event in publish order until either side disconnects.
func (h *Handler) streamGraphs(conn *websocket.Conn) {
	defer conn.Close()

	sub := h.Store.Subscribe()
	defer h.Store.Unsubscribe(sub)

	if err := conn.WriteJSON(h.Store.SnapshotEvent()); err != nil {
		return
	}

	// The read pump only detects disconnects; clients send nothing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
