package api

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"quantforge.com/internal/api/middleware"
	"quantforge.com/internal/infra"
)

// InitWebsocket registers the /ws endpoint. Browsers cannot set an
// Authorization header on the upgrade request, so the token travels as a
// query parameter instead.
func InitWebsocket(app *fiber.App, hub *infra.WsHub, jwtSecret string) {
	// Middleware to force upgrade
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		token := c.Query("token")
		claims, err := middleware.ParseToken(token, jwtSecret)
		if err != nil {
			log.Printf("WS: rejected connection: %v", err)
			c.Close()
			return
		}
		id, ok := claims["id"].(float64)
		if !ok || id == 0 {
			c.Close()
			return
		}
		userID := uint(id)

		log.Printf("WS: new connection for user %d", userID)

		hub.Register <- infra.UserConnection{UserID: userID, Conn: c}
		defer func() {
			hub.Unregister <- infra.UserConnection{UserID: userID, Conn: c}
		}()

		// The push channel is one-way: drain incoming frames until the
		// client disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WS: read error for user %d: %v", userID, err)
				}
				break
			}
		}
	}))
}
