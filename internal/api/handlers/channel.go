package handlers

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sonora-labs/sonora-go/internal/client"
	"github.com/sonora-labs/sonora-go/internal/core"
)

var errChannelTimedOut = errors.New("channel timed out waiting for end-of-stream")

// ChannelHandler issues channel-bearing requests over a link and waits
// for the channel to end, returning whatever bytes it collected. This
// daemon does not parse the resulting bytes into domain objects
// (tracks, albums, playlists) — that belongs to the application
// embedding this engine, which is out of scope here.
type ChannelHandler struct {
	manager *client.Manager
	logger  *zap.SugaredLogger
	timeout time.Duration
}

// NewChannelHandler creates a new channel handler with a default
// collection timeout.
func NewChannelHandler(manager *client.Manager, logger *zap.SugaredLogger) *ChannelHandler {
	return &ChannelHandler{manager: manager, logger: logger, timeout: 20 * time.Second}
}

// collectingListener buffers every fragment delivered to a channel and
// signals done when the channel ends.
type collectingListener struct {
	data chan []byte
	done chan struct{}
}

func newCollectingListener() *collectingListener {
	return &collectingListener{data: make(chan []byte, 64), done: make(chan struct{})}
}

func (l *collectingListener) OnData(_ uint16, data []byte) {
	l.data <- append([]byte{}, data...)
}

func (l *collectingListener) OnEnd(_ uint16) {
	close(l.done)
}

func (h *ChannelHandler) await(listener *collectingListener) ([]byte, error) {
	var out []byte
	deadline := time.After(h.timeout)
	for {
		select {
		case frag := <-listener.data:
			out = append(out, frag...)
		case <-listener.done:
			// Drain whatever arrived between the end signal and now.
			for {
				select {
				case frag := <-listener.data:
					out = append(out, frag...)
					continue
				default:
				}
				return out, nil
			}
		case <-deadline:
			return out, errChannelTimedOut
		}
	}
}

func (h *ChannelHandler) linkOrNotFound(c *fiber.Ctx) (*client.Link, error) {
	link, exists := h.manager.GetLink(c.Params("id"))
	if !exists {
		return nil, fiber.NewError(fiber.StatusNotFound, "link not found")
	}
	return link, nil
}

// SearchRequest describes a catalog search.
type SearchRequest struct {
	Query  string `json:"query"`
	Offset int32  `json:"offset"`
	Limit  int32  `json:"limit"`
}

// Search opens a SEARCH channel and returns the raw result bytes.
func (h *ChannelHandler) Search(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}
	if req.Limit == 0 {
		req.Limit = -1
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelSearch, listener, core.CmdSearch, func(channelID uint16) ([]byte, error) {
		return core.BuildSearch(channelID, req.Offset, req.Limit, req.Query)
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"result":    base64.StdEncoding.EncodeToString(result),
		},
	})
}

// ImageRequest identifies an image by its hex-encoded id.
type ImageRequest struct {
	ImageID string `json:"imageId"`
}

// Image opens an IMAGE channel and returns the raw image bytes.
func (h *ChannelHandler) Image(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req ImageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	var imageID [20]byte
	if err := decodeHexInto(imageID[:], req.ImageID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "imageId must be 40 hex characters"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelImage, listener, core.CmdImage, func(channelID uint16) ([]byte, error) {
		return core.BuildImage(channelID, imageID), nil
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"image":     base64.StdEncoding.EncodeToString(result),
		},
	})
}

// BrowseRequest identifies the entities to browse.
type BrowseRequest struct {
	Type int      `json:"type"`
	IDs  []string `json:"ids"`
}

// Browse opens a BROWSE channel for one or more artist/album/track ids.
func (h *ChannelHandler) Browse(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req BrowseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	ids := make([][16]byte, len(req.IDs))
	for i, hexID := range req.IDs {
		if err := decodeHexInto(ids[i][:], hexID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "ids must be 32 hex characters each"})
		}
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelBrowse, listener, core.CmdBrowse, func(channelID uint16) ([]byte, error) {
		return core.BuildBrowse(channelID, core.BrowseType(req.Type), ids)
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"result":    base64.StdEncoding.EncodeToString(result),
		},
	})
}

// RequestAdRequest identifies the ad slot type being requested.
type RequestAdRequest struct {
	AdType int `json:"adType"`
}

// RequestAd opens a REQUESTAD channel and returns the raw ad bytes.
func (h *ChannelHandler) RequestAd(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req RequestAdRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelAD, listener, core.CmdRequestAd, func(channelID uint16) ([]byte, error) {
		return core.BuildRequestAd(channelID, byte(req.AdType)), nil
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"result":    base64.StdEncoding.EncodeToString(result),
		},
	})
}

// ReqKeyRequest identifies the file/track pair a decryption key is
// requested for.
type ReqKeyRequest struct {
	FileID  string `json:"fileId"`
	TrackID string `json:"trackId"`
}

// ReqKey opens a REQKEY channel and returns the raw AES key bytes.
func (h *ChannelHandler) ReqKey(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req ReqKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	var fileID [20]byte
	if err := decodeHexInto(fileID[:], req.FileID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "fileId must be 40 hex characters"})
	}
	var trackID [16]byte
	if err := decodeHexInto(trackID[:], req.TrackID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "trackId must be 32 hex characters"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelAESKey, listener, core.CmdReqKey, func(channelID uint16) ([]byte, error) {
		return core.BuildReqKey(fileID, trackID, channelID), nil
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"key":       base64.StdEncoding.EncodeToString(result),
		},
	})
}

// SubstreamRequest identifies the file and byte range to fetch. Offset
// and Length must each be a multiple of 4096, per spec.md §6.
type SubstreamRequest struct {
	FileID string `json:"fileId"`
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
}

// GetSubstream opens a GETSUBSTREAM channel and returns the raw
// audio-file fragment bytes.
func (h *ChannelHandler) GetSubstream(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req SubstreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	var fileID [20]byte
	if err := decodeHexInto(fileID[:], req.FileID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "fileId must be 40 hex characters"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelSubstream, listener, core.CmdGetSubstream, func(channelID uint16) ([]byte, error) {
		return core.BuildGetSubstream(channelID, fileID, req.Offset, req.Length)
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"chunk":     base64.StdEncoding.EncodeToString(result),
		},
	})
}

// GetPlaylist opens a GETPLAYLIST channel for the playlist identified
// by its 17-byte hex id (the leading type byte plus 16-byte GID).
func (h *ChannelHandler) GetPlaylist(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	playlistIDHex := c.Params("playlistId")
	var playlistID [17]byte
	if err := decodeHexInto(playlistID[:], playlistIDHex); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "playlistId must be 34 hex characters"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelPlaylist, listener, core.CmdGetPlaylist, func(channelID uint16) ([]byte, error) {
		return core.BuildGetPlaylist(channelID, playlistID), nil
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"result":    base64.StdEncoding.EncodeToString(result),
		},
	})
}

// ChangePlaylistRequest describes a playlist mutation submitted as XML,
// per spec.md §6.
type ChangePlaylistRequest struct {
	PlaylistID    string `json:"playlistId"`
	Revision      uint32 `json:"revision"`
	TrackCount    uint32 `json:"trackCount"`
	Checksum      uint32 `json:"checksum"`
	Collaborative bool   `json:"collaborative"`
	XML           string `json:"xml"`
}

// ChangePlaylist opens a CHANGEPLAYLIST channel to submit a playlist
// mutation and returns the server's confirmation bytes.
func (h *ChannelHandler) ChangePlaylist(c *fiber.Ctx) error {
	link, err := h.linkOrNotFound(c)
	if err != nil {
		return err
	}

	var req ChangePlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request body"})
	}

	var playlistID [17]byte
	if err := decodeHexInto(playlistID[:], req.PlaylistID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "playlistId must be 34 hex characters"})
	}

	listener := newCollectingListener()
	id, err := link.OpenChannel(core.ChannelPlaylist, listener, core.CmdChangePlaylist, func(channelID uint16) ([]byte, error) {
		return core.BuildChangePlaylist(channelID, playlistID, req.Revision, req.TrackCount, req.Checksum, req.Collaborative, []byte(req.XML)), nil
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	result, err := h.await(listener)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"channelId": id,
			"result":    base64.StdEncoding.EncodeToString(result),
		},
	})
}

func decodeHexInto(dst []byte, s string) error {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != len(dst) {
		return fiber.NewError(fiber.StatusBadRequest, "malformed hex id")
	}
	copy(dst, decoded)
	return nil
}
