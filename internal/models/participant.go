package models

// Participant is a recruited evaluator attached to an experiment.
type Participant struct {
	BaseModel

	ExperimentID string `gorm:"type:uuid;not null;index" json:"experiment_id"`
	// The column tag pins the name; the default naming strategy would split
	// PID into prolific_p_id.
	ProlificPID string `gorm:"column:prolific_pid;index" json:"prolific_pid,omitempty"`
	Status      string `json:"status"`

	Experiment *Experiment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
