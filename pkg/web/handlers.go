package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-taro/pkg/hub"
)

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleStatusWS sends the current status, then every periodic push,
// until the client disconnects.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := json.Marshal(s.status())
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		initial = nil
	}
	hub.NewClient(s.statusHub, c, initial).Run()
}
