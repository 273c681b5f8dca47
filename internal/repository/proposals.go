package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

func (r *Repository) FindProposal(ctx context.Context, id uuid.UUID) (models.Proposal, error) {
	var p models.Proposal
	err := r.db.WithContext(ctx).Preload("Project").First(&p, "id = ?", id).Error
	return p, translate(err, "proposal")
}

// ProposalExists reports whether freelancerID already bid on projectID.
func (r *Repository) ProposalExists(ctx context.Context, projectID, freelancerID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("project_id = ? AND freelancer_id = ?", projectID, freelancerID).
		Count(&n).Error
	if err != nil {
		return false, translate(err, "proposal")
	}
	return n > 0, nil
}

// SubmitProposal inserts p and appends its id to the project's ProposalIDs.
// The project row is locked for the duration, and both writes require the
// project to still be open.
func (r *Repository) SubmitProposal(ctx context.Context, p *models.Proposal) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := forUpdate(tx).First(&project, "id = ?", p.ProjectID).Error; err != nil {
			return translate(err, "project")
		}
		if project.Status != models.ProjectOpen {
			return apperr.InvalidState("project not accepting proposals")
		}

		if err := tx.Create(p).Error; err != nil {
			return translate(err, "proposal")
		}

		ids := append(project.ProposalIDs, p.ID)
		res := tx.Model(&models.Project{}).
			Where("id = ? AND status = ?", project.ID, models.ProjectOpen).
			Update("proposal_ids", datatypes.NewJSONSlice([]uuid.UUID(ids)))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("project not accepting proposals")
		}
		return nil
	})
	return translate(err, "proposal")
}

func (r *Repository) RejectProposal(ctx context.Context, id uuid.UUID) error {
	return r.movePending(ctx, id, models.ProposalRejected)
}

func (r *Repository) WithdrawProposal(ctx context.Context, id uuid.UUID) error {
	return r.movePending(ctx, id, models.ProposalWithdrawn)
}

func (r *Repository) movePending(ctx context.Context, id uuid.UUID, to models.ProposalStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalPending).
		Update("status", to)
	if res.Error != nil {
		return translate(res.Error, "proposal")
	}
	if res.RowsAffected == 0 {
		return apperr.InvalidState("proposal is no longer pending")
	}
	return nil
}

// AcceptProposal runs the acceptance as one unit:
//
//	(a) the project becomes in-progress with the freelancer assigned (only from open),
//	(b) the proposal becomes accepted (only from pending),
//	(c) every other pending proposal of the project becomes rejected.
//
// The project row is locked before any proposal row, the same order
// SubmitProposal and CancelProject use, so concurrent writers on one project
// queue up instead of deadlocking. If (a) or (b) matches no row the whole
// unit rolls back with InvalidState. It returns the count from (c).
func (r *Repository) AcceptProposal(ctx context.Context, proposalID, projectID, freelancerID uuid.UUID) (int64, error) {
	var rejected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := forUpdate(tx).First(&project, "id = ?", projectID).Error; err != nil {
			return translate(err, "project")
		}
		if project.Status != models.ProjectOpen {
			return apperr.Newf(apperr.KindInvalidState, "project already %s", project.Status)
		}

		res := tx.Model(&models.Project{}).
			Where("id = ? AND status = ?", projectID, models.ProjectOpen).
			Updates(map[string]any{
				"status":                 models.ProjectInProgress,
				"assigned_freelancer_id": freelancerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("project is no longer open")
		}

		res = tx.Model(&models.Proposal{}).
			Where("id = ? AND project_id = ? AND status = ?", proposalID, projectID, models.ProposalPending).
			Update("status", models.ProposalAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("proposal is no longer pending")
		}

		res = tx.Model(&models.Proposal{}).
			Where("project_id = ? AND id <> ? AND status = ?", projectID, proposalID, models.ProposalPending).
			Update("status", models.ProposalRejected)
		if res.Error != nil {
			return res.Error
		}
		rejected = res.RowsAffected
		return nil
	})
	return rejected, translate(err, "proposal")
}

// ListProposalsByFreelancer returns the freelancer's proposals, newest
// first, with their projects loaded.
func (r *Repository) ListProposalsByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Proposal, error) {
	var out []models.Proposal
	err := r.db.WithContext(ctx).
		Preload("Project").
		Where("freelancer_id = ?", freelancerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err, "proposal")
}
