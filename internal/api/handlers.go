package api

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"podfetch/backend"
)

const AppVersion = "1.0.0"

// Health check
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": AppVersion,
		"busy":    s.orch.Active(),
	})
}

func (s *Server) handleGetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": AppVersion})
}

func (s *Server) handleCheckDependencies(c *fiber.Ctx) error {
	return c.JSON(backend.CheckDependencies(c.UserContext(), s.orch.Config()))
}

// statusForKind maps a job error kind onto an HTTP status.
func statusForKind(kind backend.ErrorKind) int {
	switch kind {
	case "":
		return fiber.StatusOK
	case backend.KindInvalidRequest:
		return fiber.StatusBadRequest
	case backend.KindBusy:
		return fiber.StatusConflict
	case backend.KindCancelled:
		return fiber.StatusOK
	case backend.KindExtraction, backend.KindNetwork, backend.KindDownloadFailed:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ============== Download Handlers ==============

func (s *Server) handleGetInfo(c *fiber.Ctx) error {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "url is required"})
	}

	info, err := s.orch.GetInfo(c.UserContext(), url)
	if err != nil {
		kind := backend.ErrorKindOf(err)
		return c.Status(statusForKind(kind)).JSON(fiber.Map{"error": backend.UserMessage(err), "errorKind": kind})
	}
	return c.JSON(info)
}

type trackRequest struct {
	URL string `json:"url"`
	Dir string `json:"dir"`
}

type videoRequest struct {
	URL     string `json:"url"`
	Dir     string `json:"dir"`
	Variant string `json:"variant"`
}

func (s *Server) handleDownloadTrack(c *fiber.Ctx) error {
	var body trackRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	dir := body.Dir
	if dir == "" {
		dir = s.currentConfig().AudioDirectory()
	}

	result := s.orch.DownloadTrack(c.UserContext(), strings.TrimSpace(body.URL), dir)
	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

func (s *Server) handleDownloadVideo(c *fiber.Ctx) error {
	var body videoRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	variant, err := backend.ParseVariant(body.Variant)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error(), "errorKind": backend.KindInvalidRequest})
	}

	dir := body.Dir
	if dir == "" {
		dir = s.currentConfig().VideoDirectory()
	}

	result := s.orch.DownloadVideo(c.UserContext(), strings.TrimSpace(body.URL), dir, variant)
	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return c.JSON(s.orch.StopActiveJob())
}

// ============== Config Handlers ==============

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.currentConfig())
}

// handleSaveConfig persists the config. Output folders apply to the next
// request; binaries and timeouts apply after a restart.
func (s *Server) handleSaveConfig(c *fiber.Ctx) error {
	config := *s.currentConfig()
	if err := c.BodyParser(&config); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := config.Validate(); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid config: " + err.Error()})
	}

	if err := backend.SaveConfig(&config); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	s.mu.Lock()
	s.config = &config
	s.mu.Unlock()

	return c.JSON(fiber.Map{"success": true})
}

// ============== History Handlers ==============

func (s *Server) history(c *fiber.Ctx) (*backend.History, error) {
	h := s.orch.History()
	if h == nil {
		return nil, c.Status(404).JSON(fiber.Map{"error": "History is disabled"})
	}
	return h, nil
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	h, err := s.history(c)
	if h == nil {
		return err
	}

	var entries []backend.HistoryEntry
	if q := c.Query("q"); q != "" {
		entries, err = h.Search(c.UserContext(), q)
	} else {
		entries, err = h.GetRecent(c.UserContext(), c.QueryInt("limit", 0))
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

func (s *Server) handleGetHistoryStats(c *fiber.Ctx) error {
	h, err := s.history(c)
	if h == nil {
		return err
	}
	stats, err := h.GetStats(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

func (s *Server) handleDeleteHistoryEntry(c *fiber.Ctx) error {
	h, err := s.history(c)
	if h == nil {
		return err
	}
	if err := h.Delete(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, backend.ErrHistoryNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	h, err := s.history(c)
	if h == nil {
		return err
	}
	if err := h.Clear(c.UserContext()); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// handleRedownloadFromHistory runs a recorded job again with the same
// kind and variant, into the folder its previous output went to.
func (s *Server) handleRedownloadFromHistory(c *fiber.Ctx) error {
	h, err := s.history(c)
	if h == nil {
		return err
	}
	entry, err := h.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, backend.ErrHistoryNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "History entry not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	cfg := s.currentConfig()
	req := backend.JobRequest{URL: entry.URL, Kind: entry.Kind, Variant: entry.Variant}
	switch {
	case entry.OutputPath != "":
		req.DestinationDir = filepath.Dir(entry.OutputPath)
	case entry.Kind == backend.KindVideo:
		req.DestinationDir = cfg.VideoDirectory()
	default:
		req.DestinationDir = cfg.AudioDirectory()
	}
	if req.Variant == "" {
		req.Variant = backend.VariantNormal
	}

	result := s.orch.Run(c.UserContext(), req)
	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

// ============== Device Handlers ==============

type deviceRequest struct {
	File   string `json:"file"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

func deviceError(c *fiber.Ctx, err error) error {
	status := statusForKind(backend.ErrorKindOf(err))
	if errors.Is(err, backend.ErrDeviceNotConnected) {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": backend.UserMessage(err)})
}

func (s *Server) handleCheckDevice(c *fiber.Ctx) error {
	return c.JSON(s.orch.CheckDevice())
}

func (s *Server) handleCopyToDevice(c *fiber.Ctx) error {
	var body deviceRequest
	if err := c.BodyParser(&body); err != nil || body.File == "" {
		return c.Status(400).JSON(fiber.Map{"error": "file is required"})
	}
	transfer, err := s.orch.CopyToDevice(body.File, body.Artist)
	if err != nil {
		return deviceError(c, err)
	}
	return c.JSON(transfer)
}

func (s *Server) handleVideoToDevice(c *fiber.Ctx) error {
	var body deviceRequest
	if err := c.BodyParser(&body); err != nil || body.File == "" {
		return c.Status(400).JSON(fiber.Map{"error": "file is required"})
	}
	transfer, err := s.orch.VideoToDevice(c.UserContext(), body.File, body.Artist, body.Title)
	if err != nil {
		return deviceError(c, err)
	}
	return c.JSON(transfer)
}
