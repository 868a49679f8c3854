package models

// Experiment groups evaluation tasks, submissions and participants, and may
// be linked to one external recruitment study.
type Experiment struct {
	BaseModel

	Name            string  `gorm:"not null" json:"name"`
	Status          string  `json:"status"`
	CreatedBy       string  `json:"created_by"`
	OrganizationID  *string `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	ProlificStudyID *string `gorm:"index" json:"prolific_study_id,omitempty"`

	Tasks        []ComparisonTask `gorm:"foreignKey:ExperimentID" json:"tasks,omitempty"`
	Submissions  []Submission     `gorm:"foreignKey:ExperimentID" json:"submissions,omitempty"`
	Participants []Participant    `gorm:"foreignKey:ExperimentID" json:"participants,omitempty"`
}
