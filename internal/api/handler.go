package api

import (
	"github.com/gofiber/fiber/v2"

	"trigger-console/internal/audit"
	"trigger-console/internal/console"
	"trigger-console/internal/editor"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/store"
)

// Handler serves the console API.
type Handler struct {
	console *console.Console
	hub     *notify.Hub
	store   *store.Store // nil when the audit log is disabled
}

func NewHandler(c *console.Console, hub *notify.Hub, s *store.Store) *Handler {
	return &Handler{console: c, hub: hub, store: s}
}

// RegisterRoutes mounts the console routes behind authMW. The audit log is
// admin-only.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	api := app.Group("/api", authMW)

	api.Get("/records", h.ListRecords)
	api.Get("/records/all", h.ListAllRecords)
	api.Get("/records/options", h.ListOptions)
	api.Get("/records/search", h.SearchRecords)
	api.Post("/records/refresh", h.RefreshRecords)
	api.Put("/filters", h.SetFilters)

	api.Get("/selection", h.GetSelection)
	api.Put("/selection", h.SetSelection)

	api.Post("/editors", h.OpenEditor)
	api.Get("/editors/:id", h.GetEditor)
	api.Put("/editors/:id/fields/:field", h.SetField)
	api.Post("/editors/:id/fields/:field/validate", h.ValidateField)
	api.Post("/editors/:id/submit", h.SubmitEditor)
	api.Delete("/editors/:id", h.CloseEditor)

	api.Get("/deployments", h.GetDeployments)
	api.Get("/notifications/stream", h.StreamNotifications)

	api.Get("/_admin/events", adminMW, h.ListEvents)
}

// --- Records ---

func (h *Handler) ListRecords(c *fiber.Ctx) error {
	objectType, event := h.console.Filters()
	return c.JSON(fiber.Map{
		"data":    nonNil(h.console.Records()),
		"filters": fiber.Map{"objectType": objectType, "event": event},
	})
}

func (h *Handler) ListAllRecords(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": nonNil(h.console.AllRecords())})
}

func (h *Handler) ListOptions(c *fiber.Ctx) error {
	objects, events := h.console.Options()
	return c.JSON(fiber.Map{"data": fiber.Map{"objectTypes": objects, "events": events}})
}

func (h *Handler) SearchRecords(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return InvalidPayloadError("Query parameter q is required")
	}
	records, err := h.console.Search(q)
	if err != nil {
		return InvalidPayloadError(err.Error())
	}
	return c.JSON(fiber.Map{"data": nonNil(records)})
}

func (h *Handler) RefreshRecords(c *fiber.Ctx) error {
	if err := h.console.Refresh(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": nonNil(h.console.Records())})
}

func (h *Handler) SetFilters(c *fiber.Ctx) error {
	var body struct {
		ObjectType string             `json:"objectType"`
		Event      metadata.EventType `json:"event"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	records, err := h.console.SetFilters(body.ObjectType, body.Event)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": nonNil(records)})
}

// --- Selection ---

func (h *Handler) GetSelection(c *fiber.Ctx) error {
	sel, ok := h.console.Selected()
	if !ok {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": sel})
}

func (h *Handler) SetSelection(c *fiber.Ctx) error {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	sel, err := h.console.Select(body.ID)
	if err != nil {
		return err
	}
	if body.ID == "" {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": sel})
}

// --- Editors ---

func (h *Handler) OpenEditor(c *fiber.Ctx) error {
	var body struct {
		Mode     string `json:"mode"`
		RecordID string `json:"recordId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	mode, err := editor.ParseMode(body.Mode)
	if err != nil {
		return err
	}
	if mode != editor.ModeNew && body.RecordID == "" {
		return InvalidPayloadError("recordId is required to edit or clone")
	}

	s, err := h.console.OpenEditor(c.Context(), mode, body.RecordID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": s.View()})
}

func (h *Handler) GetEditor(c *fiber.Ctx) error {
	s, err := h.console.Editor(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": s.View()})
}

func (h *Handler) SetField(c *fiber.Ctx) error {
	s, field, err := h.editorField(c)
	if err != nil {
		return err
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	if err := s.SetValue(field, body.Value); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": s.View()})
}

func (h *Handler) ValidateField(c *fiber.Ctx) error {
	s, field, err := h.editorField(c)
	if err != nil {
		return err
	}
	if err := s.Validate(c.Context(), field); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": s.View()})
}

func (h *Handler) editorField(c *fiber.Ctx) (*editor.Session, editor.Field, error) {
	s, err := h.console.Editor(c.Params("id"))
	if err != nil {
		return nil, "", err
	}
	field, err := editor.ParseField(c.Params("field"))
	if err != nil {
		return nil, "", err
	}
	return s, field, nil
}

func (h *Handler) SubmitEditor(c *fiber.Ctx) error {
	rec, err := h.console.SubmitEditor(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": rec})
}

func (h *Handler) CloseEditor(c *fiber.Ctx) error {
	if err := h.console.CloseEditor(c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Editor closed"})
}

// --- Deployments & audit ---

func (h *Handler) GetDeployments(c *fiber.Ctx) error {
	d := h.console.Deployments()
	d.Pending = nonNil(d.Pending)
	return c.JSON(fiber.Map{"data": d})
}

func (h *Handler) ListEvents(c *fiber.Ctx) error {
	if h.store == nil {
		return NewAppError("AUDIT_DISABLED", 404, "Audit log is disabled")
	}
	events, err := audit.List(c.Context(), h.store, audit.ListFilter{
		Action:   c.Query("action"),
		RecordID: c.Query("record_id"),
		Limit:    c.QueryInt("limit", 100),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": events})
}

func nonNil(records []metadata.Record) []metadata.Record {
	if records == nil {
		return []metadata.Record{}
	}
	return records
}
