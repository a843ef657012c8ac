package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/joinery-agent/internal/store"
)

// GetSession shows what the assistant remembers for a call.
func (h *Handlers) GetSession(c *fiber.Ctx) error {
	s, ok, err := h.sessions.Peek(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	if !ok {
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "no session "+c.Params("key"))
	}
	return c.JSON(s)
}

// DeleteSession forgets a call's context and history.
func (h *Handlers) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.UserContext(), c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTurns returns the persisted turn log for a session, newest first.
func (h *Handlers) ListTurns(c *fiber.Ctx) error {
	turns, err := h.store.ListTurns(c.UserContext(), c.Params("key"), queryLimit(c, 50, 500))
	if err != nil {
		return storeError(c, err)
	}
	if turns == nil {
		turns = []*store.VoiceTurn{}
	}
	return c.JSON(fiber.Map{"turns": turns})
}
