// Package project owns the project lifecycle: open, in-progress, completed
// and the cancelled extension.
package project

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 2000
	MaxFeedbackLen    = 1000
)

type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	ListProjectsByStatus(ctx context.Context, status models.ProjectStatus) ([]models.Project, error)
	ListProjectsByClient(ctx context.Context, clientID uuid.UUID) ([]models.Project, error)
	ListActiveProjectsForFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Project, error)
	FindProject(ctx context.Context, id uuid.UUID) (models.Project, error)
	FindProjectDetail(ctx context.Context, id uuid.UUID) (models.Project, error)
	CompleteProject(ctx context.Context, id uuid.UUID, rating int, feedback string, at time.Time) error
	CancelProject(ctx context.Context, id uuid.UUID) (int64, error)
}

type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func New(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

type CreateInput struct {
	Title       string
	Description string
	Budget      float64
	Skills      []string
}

type CompleteInput struct {
	Rating   int
	Feedback string
}

func (s *Service) Create(ctx context.Context, claim auth.Claim, in CreateInput) (models.Project, error) {
	if !claim.IsClient() {
		return models.Project{}, apperr.Forbidden("only clients can create projects")
	}

	title := strings.TrimSpace(in.Title)
	desc := strings.TrimSpace(in.Description)
	switch {
	case title == "":
		return models.Project{}, apperr.InvalidInput("title is required")
	case utf8.RuneCountInString(title) > MaxTitleLen:
		return models.Project{}, apperr.Newf(apperr.KindInvalidInput, "title must be at most %d characters", MaxTitleLen)
	case desc == "":
		return models.Project{}, apperr.InvalidInput("description is required")
	case utf8.RuneCountInString(desc) > MaxDescriptionLen:
		return models.Project{}, apperr.Newf(apperr.KindInvalidInput, "description must be at most %d characters", MaxDescriptionLen)
	case in.Budget < 0 || math.IsNaN(in.Budget) || math.IsInf(in.Budget, 0):
		return models.Project{}, apperr.InvalidInput("budget must be a non-negative number")
	}

	p := models.Project{
		ClientID:       claim.ID,
		Title:          title,
		Description:    desc,
		Budget:         in.Budget,
		SkillsRequired: datatypes.NewJSONSlice(normalizeSkills(in.Skills)),
		Status:         models.ProjectOpen,
	}
	if err := s.store.CreateProject(ctx, &p); err != nil {
		return models.Project{}, err
	}

	s.log.Info("project created", zap.String("project_id", p.ID.String()), zap.String("client_id", claim.ID.String()))
	return p, nil
}

// normalizeSkills trims, drops blanks and de-duplicates case-insensitively,
// keeping the first spelling seen.
func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func (s *Service) ListOpen(ctx context.Context) ([]models.Project, error) {
	return s.store.ListProjectsByStatus(ctx, models.ProjectOpen)
}

func (s *Service) ListByClient(ctx context.Context, claim auth.Claim, clientID string) ([]models.Project, error) {
	id, err := uuid.Parse(clientID)
	if !claim.IsClient() || err != nil || id != claim.ID {
		return nil, apperr.Forbidden("you can only list your own projects")
	}
	return s.store.ListProjectsByClient(ctx, id)
}

// GetByID treats a malformed id like an absent one.
func (s *Service) GetByID(ctx context.Context, id string) (models.Project, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return models.Project{}, apperr.NotFound("project not found")
	}
	return s.store.FindProjectDetail(ctx, pid)
}

func (s *Service) ListActiveForFreelancer(ctx context.Context, claim auth.Claim) ([]models.Project, error) {
	if !claim.IsFreelancer() {
		return nil, apperr.Forbidden("only freelancers have active projects")
	}
	return s.store.ListActiveProjectsForFreelancer(ctx, claim.ID)
}

// Complete closes an in-progress project with the client's rating. Checks
// run in order: existence, ownership, state, then the rating and feedback.
func (s *Service) Complete(ctx context.Context, claim auth.Claim, projectID string, in CompleteInput) (models.Project, error) {
	p, err := s.ownedProject(ctx, claim, projectID, "only the project owner can complete it")
	if err != nil {
		return models.Project{}, err
	}
	if p.Status != models.ProjectInProgress {
		return models.Project{}, apperr.InvalidState("project is not in progress")
	}

	feedback := strings.TrimSpace(in.Feedback)
	if in.Rating < 1 || in.Rating > 5 {
		return models.Project{}, apperr.InvalidInput("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(feedback) > MaxFeedbackLen {
		return models.Project{}, apperr.Newf(apperr.KindInvalidInput, "feedback must be at most %d characters", MaxFeedbackLen)
	}

	if err := s.store.CompleteProject(ctx, p.ID, in.Rating, feedback, s.now()); err != nil {
		return models.Project{}, err
	}

	s.log.Info("project completed",
		zap.String("project_id", p.ID.String()),
		zap.Int("rating", in.Rating),
	)
	return s.store.FindProject(ctx, p.ID)
}

// Cancel closes an open project and rejects its pending proposals.
func (s *Service) Cancel(ctx context.Context, claim auth.Claim, projectID string) (models.Project, error) {
	p, err := s.ownedProject(ctx, claim, projectID, "only the project owner can cancel it")
	if err != nil {
		return models.Project{}, err
	}
	if p.Status != models.ProjectOpen {
		return models.Project{}, apperr.Newf(apperr.KindInvalidState, "project already %s", p.Status)
	}

	rejected, err := s.store.CancelProject(ctx, p.ID)
	if err != nil {
		return models.Project{}, err
	}

	s.log.Info("project cancelled",
		zap.String("project_id", p.ID.String()),
		zap.Int64("proposals_rejected", rejected),
	)
	return s.store.FindProject(ctx, p.ID)
}

func (s *Service) ownedProject(ctx context.Context, claim auth.Claim, projectID, forbidden string) (models.Project, error) {
	pid, err := uuid.Parse(projectID)
	if err != nil {
		return models.Project{}, apperr.NotFound("project not found")
	}
	p, err := s.store.FindProject(ctx, pid)
	if err != nil {
		return models.Project{}, err
	}
	if !claim.IsClient() || p.ClientID != claim.ID {
		return models.Project{}, apperr.Forbidden(forbidden)
	}
	return p, nil
}
