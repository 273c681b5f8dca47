// internal/models/proposal.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

type Proposal struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// one proposal per (project, freelancer)
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_proposal_project_freelancer,priority:1" json:"project_id"`
	FreelancerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_proposal_project_freelancer,priority:2;index" json:"freelancer_id"`

	BidAmount      float64        `gorm:"not null" json:"bid_amount"`
	ResumeFilePath string         `gorm:"type:text;not null" json:"resume_file_path"`
	Status         ProposalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Project    *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Freelancer *User    `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
}

func (p *Proposal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProposalPending
	}
	return nil
}
