package database

import (
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Parents are migrated before children so foreign keys resolve.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.OrganizationMember{},
		&models.OrganizationInvitation{},
		&models.Experiment{},
		&models.ComparisonTask{},
		&models.Submission{},
		&models.Participant{},
		&models.Video{},
	)
}
