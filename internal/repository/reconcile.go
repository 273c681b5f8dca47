package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

// RejectStalePending rejects pending proposals whose project has already
// left the open state. Returns the number of proposals changed.
func (r *Repository) RejectStalePending(ctx context.Context) (int64, error) {
	closed := r.db.Model(&models.Project{}).
		Select("id").
		Where("status IN ?", []models.ProjectStatus{
			models.ProjectInProgress,
			models.ProjectCompleted,
			models.ProjectCancelled,
		})

	res := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("status = ? AND project_id IN (?)", models.ProposalPending, closed).
		Update("status", models.ProposalRejected)
	return res.RowsAffected, translate(res.Error, "proposal")
}

// LinkOrphanProposals appends proposals missing from their project's
// ProposalIDs, in creation order. Returns the number of ids appended.
func (r *Repository) LinkOrphanProposals(ctx context.Context, batchSize int) (int64, error) {
	var projectIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Distinct("project_id").
		Pluck("project_id", &projectIDs).Error; err != nil {
		return 0, translate(err, "proposal")
	}

	var linked int64
	for start := 0; start < len(projectIDs); start += batchSize {
		end := min(start+batchSize, len(projectIDs))
		for _, pid := range projectIDs[start:end] {
			if err := ctx.Err(); err != nil {
				return linked, err
			}
			n, err := r.linkOrphans(ctx, pid)
			if err != nil {
				return linked, err
			}
			linked += n
		}
	}
	return linked, nil
}

func (r *Repository) linkOrphans(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var added int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := forUpdate(tx).First(&project, "id = ?", projectID).Error; err != nil {
			return err
		}

		var ids []uuid.UUID
		if err := tx.Model(&models.Proposal{}).
			Where("project_id = ?", projectID).
			Order("created_at ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}

		merged := []uuid.UUID(project.ProposalIDs)
		for _, id := range ids {
			if !project.HasProposal(id) {
				merged = append(merged, id)
				added++
			}
		}
		if added == 0 {
			return nil
		}
		return tx.Model(&models.Project{}).
			Where("id = ?", projectID).
			Update("proposal_ids", datatypes.NewJSONSlice(merged)).Error
	})
	if err != nil {
		return 0, translate(err, "project")
	}
	return added, nil
}
