package models

import "time"

// OrganizationMember records a user's membership and role within an
// organization. Every organization keeps at least one OWNER at all times.
type OrganizationMember struct {
	BaseModel

	OrganizationID string    `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_org_member;index" json:"user_id"`
	Role           Role      `gorm:"not null" json:"role"`
	JoinedAt       time.Time `json:"joined_at"`

	Organization *Organization `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
