package models

// Submission is a completed evaluation returned by a participant, optionally
// mirrored from the external recruitment service.
type Submission struct {
	BaseModel

	ExperimentID         string  `gorm:"type:uuid;not null;index" json:"experiment_id"`
	TaskID               *string `gorm:"type:uuid;index" json:"task_id,omitempty"`
	ParticipantID        string  `gorm:"index" json:"participant_id"`
	ProlificSubmissionID *string `gorm:"index" json:"prolific_submission_id,omitempty"`
	Status               string  `json:"status"`

	Experiment *Experiment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
