package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/proposal"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/resume"
)

type ProposalHandler struct {
	Proposals *proposal.Service
	Resumes   resume.Ingestor
}

type DecideReq struct {
	Action string `json:"action"`
}

// Submit takes multipart fields projectId, bidAmount and the resume file.
// The file is stored first; Submit discards it if the proposal is refused.
func (h *ProposalHandler) Submit(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}

	var ref resume.Ref
	if fh, ferr := c.FormFile("resume"); ferr == nil {
		f, err := fh.Open()
		if err != nil {
			return apperr.Internal("failed to read upload", err)
		}
		defer f.Close()

		ref, err = h.Resumes.Accept(c.UserContext(), resume.Upload{
			Reader:      f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
		})
		if err != nil {
			return err
		}
	}

	// an unparsable amount is refused by Submit like any other bad bid
	bid, _ := strconv.ParseFloat(strings.TrimSpace(c.FormValue("bidAmount")), 64)

	p, err := h.Proposals.Submit(c.UserContext(), claim, proposal.SubmitInput{
		ProjectID: c.FormValue("projectId"),
		BidAmount: bid,
		Resume:    ref,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, "proposal submitted", p)
}

func (h *ProposalHandler) Decide(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	var req DecideReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid body")
	}

	action := proposal.Action(strings.ToLower(strings.TrimSpace(req.Action)))
	p, err := h.Proposals.Decide(c.UserContext(), claim, c.Params("id"), action)
	if err != nil {
		return err
	}

	msg := "proposal rejected"
	if action == proposal.ActionAccept {
		msg = "proposal accepted"
	}
	return ok(c, fiber.StatusOK, msg, p)
}

func (h *ProposalHandler) Withdraw(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	p, err := h.Proposals.Withdraw(c.UserContext(), claim, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "proposal withdrawn", p)
}

func (h *ProposalHandler) ListMine(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	list, err := h.Proposals.ListMine(c.UserContext(), claim)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", list)
}
