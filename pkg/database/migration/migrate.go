package migration

import (
	"log"

	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/pkg/database"
)

func RunMigration(db *gorm.DB) error {

	log.Println("Starting migrations...")

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	log.Println("Migrations completed successfully!")
	return nil
}
