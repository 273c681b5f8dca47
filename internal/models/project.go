// internal/models/project.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "open"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

type Project struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID uuid.UUID `gorm:"type:uuid;index;not null" json:"client_id"`

	Title          string                      `gorm:"type:varchar(100);not null" json:"title"`
	Description    string                      `gorm:"type:text;not null" json:"description"`
	Budget         float64                     `gorm:"not null" json:"budget"`
	SkillsRequired datatypes.JSONSlice[string] `json:"skills_required"`

	Status ProjectStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`

	// Proposal references in submission order. Append-only.
	ProposalIDs datatypes.JSONSlice[uuid.UUID] `json:"proposal_ids"`

	AssignedFreelancerID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_freelancer_id"`
	CompletionDate       *time.Time `json:"completion_date"`
	ClientRating         *int       `json:"client_rating"`
	ClientFeedback       *string    `gorm:"type:text" json:"client_feedback"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Client             *User `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	AssignedFreelancer *User `gorm:"foreignKey:AssignedFreelancerID" json:"assigned_freelancer,omitempty"`

	// Filled by detail reads in ProposalIDs order; not a column.
	Proposals []Proposal `gorm:"-" json:"proposals,omitempty"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.SkillsRequired == nil {
		p.SkillsRequired = datatypes.NewJSONSlice([]string{})
	}
	if p.ProposalIDs == nil {
		p.ProposalIDs = datatypes.NewJSONSlice([]uuid.UUID{})
	}
	if p.Status == "" {
		p.Status = ProjectOpen
	}
	return nil
}

// HasProposal reports whether id is already linked from the project.
func (p *Project) HasProposal(id uuid.UUID) bool {
	for _, pid := range p.ProposalIDs {
		if pid == id {
			return true
		}
	}
	return false
}
