package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/joinery-agent/internal/store"
	"github.com/p-blackswan/joinery-agent/internal/timeline"
)

// ListProjects returns projects newest first. Optional filters: status,
// client and name (substring), limit.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	q := store.Query{Limit: queryLimit(c, 100, 500)}
	if s := c.Query("status"); s != "" {
		if !store.ValidStatus(s) {
			return badRequest(c, "unknown status "+s)
		}
		q = q.Filter(store.Eq("project_status", s))
	}
	if v := c.Query("client"); v != "" {
		q = q.Filter(store.ILike("client", v))
	}
	if v := c.Query("name"); v != "" {
		q = q.Filter(store.ILike("project_name", v))
	}

	projects, err := h.store.FindProjects(c.UserContext(), q)
	if err != nil {
		return storeError(c, err)
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	return c.JSON(fiber.Map{"projects": projects, "count": len(projects)})
}

// CreateProject inserts a project from the dashboard form.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var p store.Project
	if err := c.BodyParser(&p); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	p.ID = ""
	if err := h.store.CreateProject(c.UserContext(), &p); err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// GetProject returns one project with its installers.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	p, err := h.store.GetProject(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(c, err)
	}
	installers, err := h.store.ProjectInstallers(c.UserContext(), p.ID)
	if err != nil {
		return storeError(c, err)
	}
	if installers == nil {
		installers = []*store.Installer{}
	}
	return c.JSON(fiber.Map{"project": p, "installers": installers})
}

// UpdateProject applies a partial update.
func (h *Handlers) UpdateProject(c *fiber.Ctx) error {
	var patch store.ProjectPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	p, err := h.store.UpdateProject(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(p)
}

// DeleteProject removes a project and its children.
func (h *Handlers) DeleteProject(c *fiber.Ctx) error {
	if err := h.store.DeleteProject(c.UserContext(), c.Params("id")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Timeline returns scheduled installs. ?all=true includes every status.
func (h *Handlers) Timeline(c *fiber.Ctx) error {
	projects, err := h.store.FindProjects(c.UserContext(), store.Query{})
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(timeline.Build(projects, h.now(), timeline.Options{AllStatuses: c.QueryBool("all")}))
}
