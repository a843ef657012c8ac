package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/joinery-agent/internal/store"
)

func (h *Handlers) requireProject(c *fiber.Ctx) (*store.Project, error) {
	return h.store.GetProject(c.UserContext(), c.Params("id"))
}

func byProject(id string) store.Query {
	return store.Query{OrderBy: "created_at"}.Filter(store.Eq("project_id", id))
}

// ListTasks returns a project's tasks, oldest first.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	p, err := h.requireProject(c)
	if err != nil {
		return storeError(c, err)
	}
	tasks, err := h.store.FindTasks(c.UserContext(), byProject(p.ID))
	if err != nil {
		return storeError(c, err)
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return c.JSON(fiber.Map{"tasks": tasks})
}

// CreateTask adds a task to a project.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var t store.Task
	if err := c.BodyParser(&t); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	t.ID, t.ProjectID = "", c.Params("id")
	if err := h.store.CreateTask(c.UserContext(), &t); err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// UpdateTask edits a task.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var patch store.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	t, err := h.store.UpdateTask(c.UserContext(), c.Params("taskID"), patch)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(t)
}

// ToggleTask flips a task's completion flag.
func (h *Handlers) ToggleTask(c *fiber.Ctx) error {
	t, err := h.store.ToggleTask(c.UserContext(), c.Params("taskID"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(t)
}

// DeleteTask removes a task.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.store.DeleteTask(c.UserContext(), c.Params("taskID")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMaterials returns a project's materials.
func (h *Handlers) ListMaterials(c *fiber.Ctx) error {
	p, err := h.requireProject(c)
	if err != nil {
		return storeError(c, err)
	}
	mats, err := h.store.FindMaterials(c.UserContext(), byProject(p.ID))
	if err != nil {
		return storeError(c, err)
	}
	if mats == nil {
		mats = []*store.Material{}
	}
	return c.JSON(fiber.Map{"materials": mats})
}

// CreateMaterial adds a material line to a project.
func (h *Handlers) CreateMaterial(c *fiber.Ctx) error {
	var m store.Material
	if err := c.BodyParser(&m); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	m.ID, m.ProjectID = "", c.Params("id")
	if err := h.store.CreateMaterial(c.UserContext(), &m); err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// UpdateMaterial edits a material line.
func (h *Handlers) UpdateMaterial(c *fiber.Ctx) error {
	var patch store.MaterialPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	m, err := h.store.UpdateMaterial(c.UserContext(), c.Params("materialID"), patch)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(m)
}

// DeleteMaterial removes a material line.
func (h *Handlers) DeleteMaterial(c *fiber.Ctx) error {
	if err := h.store.DeleteMaterial(c.UserContext(), c.Params("materialID")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type itemView struct {
	*store.JoineryItem
	Progress int `json:"progress"`
}

func viewItem(j *store.JoineryItem) itemView {
	return itemView{JoineryItem: j, Progress: j.Progress()}
}

// ListItems returns a project's joinery items with checklist progress.
func (h *Handlers) ListItems(c *fiber.Ctx) error {
	p, err := h.requireProject(c)
	if err != nil {
		return storeError(c, err)
	}
	items, err := h.store.FindJoineryItems(c.UserContext(), byProject(p.ID))
	if err != nil {
		return storeError(c, err)
	}
	views := make([]itemView, len(items))
	for i, j := range items {
		views[i] = viewItem(j)
	}
	return c.JSON(fiber.Map{"items": views, "steps": store.ChecklistSteps})
}

// CreateItem adds a joinery item to a project.
func (h *Handlers) CreateItem(c *fiber.Ctx) error {
	var j store.JoineryItem
	if err := c.BodyParser(&j); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	j.ID, j.ProjectID = "", c.Params("id")
	if err := h.store.CreateJoineryItem(c.UserContext(), &j); err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(viewItem(&j))
}

// UpdateItem edits a joinery item's details.
func (h *Handlers) UpdateItem(c *fiber.Ctx) error {
	var patch store.JoineryItemPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	j, err := h.store.UpdateJoineryItem(c.UserContext(), c.Params("itemID"), patch)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(viewItem(j))
}

type checklistRequest struct {
	Done *bool `json:"done"`
}

// SetChecklistStep ticks or clears one manufacturing step.
func (h *Handlers) SetChecklistStep(c *fiber.Ctx) error {
	var req checklistRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	if req.Done == nil {
		return badRequest(c, "done is required")
	}
	j, err := h.store.SetChecklistStep(c.UserContext(), c.Params("itemID"), c.Params("step"), *req.Done)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(viewItem(j))
}

// DeleteItem removes a joinery item.
func (h *Handlers) DeleteItem(c *fiber.Ctx) error {
	if err := h.store.DeleteJoineryItem(c.UserContext(), c.Params("itemID")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListInstallers returns every installer.
func (h *Handlers) ListInstallers(c *fiber.Ctx) error {
	all, err := h.store.ListInstallers(c.UserContext())
	if err != nil {
		return storeError(c, err)
	}
	if all == nil {
		all = []*store.Installer{}
	}
	return c.JSON(fiber.Map{"installers": all})
}

// CreateInstaller adds an installer.
func (h *Handlers) CreateInstaller(c *fiber.Ctx) error {
	var in store.Installer
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	in.ID = ""
	if err := h.store.CreateInstaller(c.UserContext(), &in); err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(in)
}

// AssignInstaller links an installer to a project.
func (h *Handlers) AssignInstaller(c *fiber.Ctx) error {
	if err := h.store.AssignInstaller(c.UserContext(), c.Params("id"), c.Params("installerID")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnassignInstaller removes the link.
func (h *Handlers) UnassignInstaller(c *fiber.Ctx) error {
	if err := h.store.UnassignInstaller(c.UserContext(), c.Params("id"), c.Params("installerID")); err != nil {
		return storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
