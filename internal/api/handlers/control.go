package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sonora-labs/sonora-go/internal/client"
	"github.com/sonora-labs/sonora-go/internal/core"
)

// ControlHandler covers the non-channel-bearing commands: fire-and-go
// notifications that don't correlate a reply to a channel id.
type ControlHandler struct {
	manager *client.Manager
	logger  *zap.SugaredLogger
}

// NewControlHandler creates a new control handler.
func NewControlHandler(manager *client.Manager, logger *zap.SugaredLogger) *ControlHandler {
	return &ControlHandler{manager: manager, logger: logger}
}

func (h *ControlHandler) linkOrNotFound(c *fiber.Ctx) (*client.Link, error) {
	link, exists := h.manager.GetLink(c.Params("id"))
	if !exists {
		return nil, fiber.NewError(fiber.StatusNotFound, "link not found")
	}
	return link, nil
}

// CacheHashRequest carries the client's 20-byte cache digest, hex-encoded.
type CacheHashRequest struct {
	Hash string `json:"hash"`
}

// CacheHash sends the CACHEHASH notification.
func (h *ControlHandler) CacheHash(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req CacheHashRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	var hash [20]byte
	if err := decodeHexInto(hash[:], req.Hash); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "hash must be 40 hex characters"})
	}

	if err := link.Send(core.CmdCacheHash, core.BuildCacheHash(hash)); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "cache hash sent"})
}

// TokenNotify sends the (empty) TOKENNOTIFY payload, acknowledging
// receipt of the login token.
func (h *ControlHandler) TokenNotify(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	if err := link.Send(core.CmdTokenNotify, core.BuildTokenNotify()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "token notify sent"})
}

// RequestPlay sends the (empty) REQUESTPLAY payload, signalling that
// playback has started for accounting purposes.
func (h *ControlHandler) RequestPlay(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	if err := link.Send(core.CmdRequestPlay, core.BuildRequestPlay()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "request play sent"})
}

// Pong replies to the server's keepalive ping.
func (h *ControlHandler) Pong(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	if err := link.Send(core.CmdPong, core.BuildPong()); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "pong sent"})
}
