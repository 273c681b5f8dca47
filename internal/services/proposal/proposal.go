// Package proposal runs the bidding workflow: submission, the client's
// accept/reject decision and the freelancer's withdrawal.
package proposal

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/resume"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

type Store interface {
	FindProject(ctx context.Context, id uuid.UUID) (models.Project, error)
	FindProposal(ctx context.Context, id uuid.UUID) (models.Proposal, error)
	ProposalExists(ctx context.Context, projectID, freelancerID uuid.UUID) (bool, error)
	SubmitProposal(ctx context.Context, p *models.Proposal) error
	AcceptProposal(ctx context.Context, proposalID, projectID, freelancerID uuid.UUID) (int64, error)
	RejectProposal(ctx context.Context, id uuid.UUID) error
	WithdrawProposal(ctx context.Context, id uuid.UUID) error
	ListProposalsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Proposal, error)
}

// Discarder removes a stored resume that no proposal will reference.
type Discarder interface {
	Discard(ctx context.Context, ref resume.Ref) error
}

type Service struct {
	store   Store
	resumes Discarder
	log     *zap.Logger
}

func New(store Store, resumes Discarder, log *zap.Logger) *Service {
	return &Service{store: store, resumes: resumes, log: log}
}

type SubmitInput struct {
	ProjectID string
	BidAmount float64
	Resume    resume.Ref
}

// Submit records a pending proposal. Whatever the outcome short of success,
// the uploaded resume is discarded before returning.
func (s *Service) Submit(ctx context.Context, claim auth.Claim, in SubmitInput) (_ models.Proposal, err error) {
	defer func() {
		if err == nil || in.Resume == "" {
			return
		}
		// cleanup outlives a cancelled request
		if derr := s.resumes.Discard(context.WithoutCancel(ctx), in.Resume); derr != nil {
			s.log.Warn("discard resume", zap.String("resume", string(in.Resume)), zap.Error(derr))
		}
	}()

	if !claim.IsFreelancer() {
		return models.Proposal{}, apperr.Forbidden("only freelancers can submit proposals")
	}
	// a malformed id names no project
	projectID, perr := uuid.Parse(strings.TrimSpace(in.ProjectID))
	if perr != nil {
		return models.Proposal{}, apperr.NotFound("project not found")
	}
	project, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return models.Proposal{}, err
	}
	if in.BidAmount <= 0 || math.IsNaN(in.BidAmount) || math.IsInf(in.BidAmount, 0) {
		return models.Proposal{}, apperr.InvalidInput("bid amount must be greater than 0")
	}
	if in.Resume == "" {
		return models.Proposal{}, apperr.InvalidInput("resume file is required")
	}
	// a repeat bid is a conflict whatever state the project is in
	exists, err := s.store.ProposalExists(ctx, projectID, claim.ID)
	if err != nil {
		return models.Proposal{}, err
	}
	if exists {
		return models.Proposal{}, apperr.Conflict("you have already submitted a proposal for this project")
	}
	if project.Status != models.ProjectOpen {
		return models.Proposal{}, apperr.InvalidState("project not accepting proposals")
	}

	p := models.Proposal{
		ProjectID:      projectID,
		FreelancerID:   claim.ID,
		BidAmount:      in.BidAmount,
		ResumeFilePath: string(in.Resume),
		Status:         models.ProposalPending,
	}
	if err = s.store.SubmitProposal(ctx, &p); err != nil {
		return models.Proposal{}, err
	}

	s.log.Info("proposal submitted",
		zap.String("proposal_id", p.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("freelancer_id", claim.ID.String()),
	)
	return p, nil
}

// Decide applies the client's decision to a proposal on one of its
// projects. Accepting starts the project and rejects every other pending
// proposal in the same transaction.
func (s *Service) Decide(ctx context.Context, claim auth.Claim, proposalID string, action Action) (models.Proposal, error) {
	if action != ActionAccept && action != ActionReject {
		return models.Proposal{}, apperr.InvalidInput("action must be accept or reject")
	}

	p, err := s.find(ctx, proposalID)
	if err != nil {
		return models.Proposal{}, err
	}
	if !claim.IsClient() || p.Project == nil || p.Project.ClientID != claim.ID {
		return models.Proposal{}, apperr.Forbidden("only the project owner can decide on proposals")
	}

	switch action {
	case ActionReject:
		if p.Status != models.ProposalPending {
			return models.Proposal{}, apperr.Newf(apperr.KindInvalidState, "proposal already %s", p.Status)
		}
		if err := s.store.RejectProposal(ctx, p.ID); err != nil {
			return models.Proposal{}, err
		}
		s.log.Info("proposal rejected", zap.String("proposal_id", p.ID.String()))

	case ActionAccept:
		if p.Project.Status != models.ProjectOpen {
			return models.Proposal{}, apperr.Newf(apperr.KindInvalidState, "project already %s", p.Project.Status)
		}
		if p.Status != models.ProposalPending {
			return models.Proposal{}, apperr.Newf(apperr.KindInvalidState, "proposal already %s", p.Status)
		}
		rejected, err := s.store.AcceptProposal(ctx, p.ID, p.ProjectID, p.FreelancerID)
		if err != nil {
			return models.Proposal{}, err
		}
		s.log.Info("proposal accepted",
			zap.String("proposal_id", p.ID.String()),
			zap.String("project_id", p.ProjectID.String()),
			zap.String("freelancer_id", p.FreelancerID.String()),
			zap.Int64("others_rejected", rejected),
		)
	}

	return s.store.FindProposal(ctx, p.ID)
}

// Withdraw lets a freelancer pull back a pending proposal.
func (s *Service) Withdraw(ctx context.Context, claim auth.Claim, proposalID string) (models.Proposal, error) {
	p, err := s.find(ctx, proposalID)
	if err != nil {
		return models.Proposal{}, err
	}
	if !claim.IsFreelancer() || p.FreelancerID != claim.ID {
		return models.Proposal{}, apperr.Forbidden("only the author can withdraw a proposal")
	}
	if p.Status != models.ProposalPending {
		return models.Proposal{}, apperr.Newf(apperr.KindInvalidState, "proposal already %s", p.Status)
	}
	if err := s.store.WithdrawProposal(ctx, p.ID); err != nil {
		return models.Proposal{}, err
	}

	s.log.Info("proposal withdrawn", zap.String("proposal_id", p.ID.String()))
	return s.store.FindProposal(ctx, p.ID)
}

func (s *Service) ListMine(ctx context.Context, claim auth.Claim) ([]models.Proposal, error) {
	if !claim.IsFreelancer() {
		return nil, apperr.Forbidden("only freelancers have proposals")
	}
	return s.store.ListProposalsByFreelancer(ctx, claim.ID)
}

func (s *Service) find(ctx context.Context, id string) (models.Proposal, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return models.Proposal{}, apperr.NotFound("proposal not found")
	}
	return s.store.FindProposal(ctx, pid)
}
