package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/project"
)

type ProjectHandler struct {
	Projects *project.Service
}

type CreateProjectReq struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Budget         float64  `json:"budget"`
	SkillsRequired []string `json:"skillsRequired"`
}

type CompleteProjectReq struct {
	ClientRating   int    `json:"clientRating"`
	ClientFeedback string `json:"clientFeedback"`
}

func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	var req CreateProjectReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid body")
	}

	p, err := h.Projects.Create(c.UserContext(), claim, project.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Skills:      req.SkillsRequired,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, "project created", p)
}

func (h *ProjectHandler) ListOpen(c *fiber.Ctx) error {
	list, err := h.Projects.ListOpen(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", list)
}

func (h *ProjectHandler) ListByClient(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	list, err := h.Projects.ListByClient(c.UserContext(), claim, c.Params("clientId"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", list)
}

func (h *ProjectHandler) ListActive(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	list, err := h.Projects.ListActiveForFreelancer(c.UserContext(), claim)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", list)
}

func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	p, err := h.Projects.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", p)
}

func (h *ProjectHandler) Complete(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	var req CompleteProjectReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid body")
	}

	p, err := h.Projects.Complete(c.UserContext(), claim, c.Params("id"), project.CompleteInput{
		Rating:   req.ClientRating,
		Feedback: req.ClientFeedback,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "project completed", p)
}

func (h *ProjectHandler) Cancel(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	p, err := h.Projects.Cancel(c.UserContext(), claim, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "project cancelled", p)
}
