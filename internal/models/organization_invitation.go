package models

import "time"

// OrganizationInvitation is a pending, token-bearing offer of membership.
// At most one invitation exists per (organization, email); re-inviting after
// expiry overwrites the previous record.
type OrganizationInvitation struct {
	BaseModel

	OrganizationID string     `gorm:"type:uuid;not null;uniqueIndex:idx_org_email" json:"organization_id"`
	Email          string     `gorm:"not null;uniqueIndex:idx_org_email;index" json:"email"`
	Role           Role       `gorm:"not null" json:"role"`
	Token          string     `gorm:"not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`

	Organization *Organization `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Live reports whether the invitation is still open at the given instant.
func (i OrganizationInvitation) Live(now time.Time) bool {
	return i.AcceptedAt == nil && i.ExpiresAt.After(now)
}
