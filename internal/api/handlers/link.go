package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sonora-labs/sonora-go/internal/client"
)

// LinkHandler handles link lifecycle requests.
type LinkHandler struct {
	manager *client.Manager
	logger  *zap.SugaredLogger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(manager *client.Manager, logger *zap.SugaredLogger) *LinkHandler {
	return &LinkHandler{manager: manager, logger: logger}
}

// CreateRequest describes a new link to establish.
type CreateRequest struct {
	LinkID        string `json:"linkId"`
	Username      string `json:"username"`
	ServerAddress string `json:"serverAddress"`
}

// Create handles link creation.
func (h *LinkHandler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if req.Username == "" || req.ServerAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "username and serverAddress are required",
		})
	}

	if req.LinkID == "" {
		req.LinkID = "link-" + time.Now().Format("20060102150405")
	}

	link, err := h.manager.CreateLink(req.LinkID, client.LinkConfig{
		Username:      req.Username,
		ServerAddress: req.ServerAddress,
	})
	if err != nil {
		if err == client.ErrLinkExists {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "link already exists",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    link.Info(),
	})
}

// List returns every managed link.
func (h *LinkHandler) List(c *fiber.Ctx) error {
	links := h.manager.ListLinks()

	infos := make([]client.LinkInfo, len(links))
	for i, l := range links {
		infos[i] = l.Info()
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"links": infos,
			"stats": h.manager.Stats(),
		},
	})
}

// Get returns a specific link.
func (h *LinkHandler) Get(c *fiber.Ctx) error {
	link, exists := h.manager.GetLink(c.Params("id"))
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "link not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    link.Info(),
	})
}

// Delete tears down a link.
func (h *LinkHandler) Delete(c *fiber.Ctx) error {
	err := h.manager.DeleteLink(c.Params("id"))
	if err != nil {
		if err == client.ErrLinkNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "link not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "link deleted",
	})
}
