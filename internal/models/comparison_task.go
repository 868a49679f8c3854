package models

import "gorm.io/datatypes"

// ComparisonTask is a single two-video comparison presented to evaluators.
type ComparisonTask struct {
	BaseModel

	ExperimentID string         `gorm:"type:uuid;not null;index" json:"experiment_id"`
	ScenarioID   string         `gorm:"not null" json:"scenario_id"`
	ModelA       string         `gorm:"not null" json:"model_a"`
	ModelB       string         `gorm:"not null" json:"model_b"`
	VideoAPath   string         `json:"video_a_path"`
	VideoBPath   string         `json:"video_b_path"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`

	Experiment *Experiment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
