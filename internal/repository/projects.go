package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

func (r *Repository) CreateProject(ctx context.Context, p *models.Project) error {
	return translate(r.db.WithContext(ctx).Create(p).Error, "project")
}

// ListProjectsByStatus returns projects in status, newest first, with the
// owning client loaded.
func (r *Repository) ListProjectsByStatus(ctx context.Context, status models.ProjectStatus) ([]models.Project, error) {
	var out []models.Project
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err, "project")
}

func (r *Repository) ListProjectsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Project, error) {
	var out []models.Project
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("AssignedFreelancer").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err, "project")
}

func (r *Repository) ListActiveProjectsForFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Project, error) {
	var out []models.Project
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("assigned_freelancer_id = ? AND status = ?", freelancerID, models.ProjectInProgress).
		Order("updated_at DESC").
		Find(&out).Error
	return out, translate(err, "project")
}

func (r *Repository) FindProject(ctx context.Context, id uuid.UUID) (models.Project, error) {
	var p models.Project
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, translate(err, "project")
}

// FindProjectDetail loads the project with its client, the assigned
// freelancer and every proposal (with freelancer) in ProposalIDs order.
// Proposals missing from ProposalIDs follow in creation order.
func (r *Repository) FindProjectDetail(ctx context.Context, id uuid.UUID) (models.Project, error) {
	var p models.Project
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("AssignedFreelancer").
		First(&p, "id = ?", id).Error
	if err != nil {
		return p, translate(err, "project")
	}

	var proposals []models.Proposal
	if err := r.db.WithContext(ctx).
		Preload("Freelancer").
		Where("project_id = ?", p.ID).
		Order("created_at ASC").
		Find(&proposals).Error; err != nil {
		return p, translate(err, "proposal")
	}

	byID := make(map[uuid.UUID]models.Proposal, len(proposals))
	for _, pr := range proposals {
		byID[pr.ID] = pr
	}

	ordered := make([]models.Proposal, 0, len(proposals))
	for _, pid := range p.ProposalIDs {
		if pr, ok := byID[pid]; ok {
			ordered = append(ordered, pr)
			delete(byID, pid)
		}
	}
	for _, pr := range proposals {
		if _, ok := byID[pr.ID]; ok {
			ordered = append(ordered, pr)
		}
	}
	p.Proposals = ordered
	return p, nil
}

// CompleteProject moves an in-progress project to completed. Zero affected
// rows means the project left in-progress after the caller read it.
func (r *Repository) CompleteProject(ctx context.Context, id uuid.UUID, rating int, feedback string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status = ?", id, models.ProjectInProgress).
		Updates(map[string]any{
			"status":          models.ProjectCompleted,
			"completion_date": at.UTC(),
			"client_rating":   rating,
			"client_feedback": feedback,
		})
	if res.Error != nil {
		return translate(res.Error, "project")
	}
	if res.RowsAffected == 0 {
		return apperr.InvalidState("project is not in progress")
	}
	return nil
}

// CancelProject closes an open project and rejects its pending proposals in
// the same transaction. Like AcceptProposal it locks the project row before
// touching proposals. It returns how many proposals were rejected.
func (r *Repository) CancelProject(ctx context.Context, id uuid.UUID) (int64, error) {
	var rejected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := forUpdate(tx).First(&project, "id = ?", id).Error; err != nil {
			return translate(err, "project")
		}

		res := tx.Model(&models.Project{}).
			Where("id = ? AND status = ?", id, models.ProjectOpen).
			Update("status", models.ProjectCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("only open projects can be cancelled")
		}

		res = tx.Model(&models.Proposal{}).
			Where("project_id = ? AND status = ?", id, models.ProposalPending).
			Update("status", models.ProposalRejected)
		if res.Error != nil {
			return res.Error
		}
		rejected = res.RowsAffected
		return nil
	})
	return rejected, translate(err, "project")
}
