package models

// Video is a stored video asset addressed by its object-storage key.
// Videos without an owning organization are shared with every
// authenticated user.
type Video struct {
	BaseModel

	Key            string  `gorm:"not null;uniqueIndex" json:"key"`
	Name           string  `json:"name"`
	ContentType    string  `json:"content_type"`
	SizeBytes      int64   `json:"size_bytes"`
	OrganizationID *string `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	ExperimentID   *string `gorm:"type:uuid;index" json:"experiment_id,omitempty"`
}
