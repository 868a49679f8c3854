package models

// Organization is the tenant boundary owning members, invitations,
// experiments and videos.
type Organization struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`

	// TeamID links the organization to a team on the external identity
	// provider. Mirror operations against that team are best-effort.
	TeamID *string `gorm:"index" json:"team_id,omitempty"`

	// ProlificTokenCiphertext holds the organization's recruitment API token,
	// AES-GCM encrypted with the vault key.
	ProlificTokenCiphertext string `json:"-"`

	Members     []OrganizationMember     `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
	Invitations []OrganizationInvitation `gorm:"foreignKey:OrganizationID" json:"invitations,omitempty"`
	Experiments []Experiment             `gorm:"foreignKey:OrganizationID" json:"experiments,omitempty"`
	Videos      []Video                  `gorm:"foreignKey:OrganizationID" json:"videos,omitempty"`
}
