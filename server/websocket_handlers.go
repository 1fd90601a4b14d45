package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler upgrades the connection and attaches it to the caller's
// delivery channel. Identity comes from the token query parameter since
// browsers cannot set headers on websocket upgrades.
func (s *Server) WebsocketHandler() fiber.Handler {
	handler := websocket.New(func(conn *websocket.Conn) {
		userID := conn.Locals("userID").(uint)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			slog.Warn("websocket registration rejected", "user_id", userID, "error", err)
			_ = conn.Close()
			return
		}

		slog.Info("websocket connected", "user_id", userID, "connections", s.hub.ConnectionCount(userID))

		go client.WritePump()
		// ReadPump blocks until the peer disconnects and unregisters the client.
		client.ReadPump()

		slog.Info("websocket disconnected", "user_id", userID)
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		tokenString := c.Query("token")
		if tokenString == "" {
			tokenString = bearerToken(c)
		}
		if tokenString == "" {
			return fiber.ErrUnauthorized
		}

		userID, claims, err := s.parseToken(tokenString)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		if s.isRevoked(c.Context(), claims) {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", userID)
		return handler(c)
	}
}
