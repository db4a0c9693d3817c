package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/database/repository"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// DatabaseManager owns the GORM handle and the background maintenance loop
type DatabaseManager struct {
	db     *gorm.DB
	logger logging.Logger
	stop   chan struct{}
}

// NewDatabaseManager creates a database manager and runs the schema
// migrations for every model.
func NewDatabaseManager(gormDB *gorm.DB) (*DatabaseManager, error) {
	if err := AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	return &DatabaseManager{
		db:     gormDB,
		logger: logging.GetGlobalLoggerFactory().CreateLogger("database"),
		stop:   make(chan struct{}),
	}, nil
}

// AutoMigrate creates or updates every table
func AutoMigrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return err
	}

	return db.AutoMigrate(
		&models.GuildSettings{},
		&models.GuildQueueState{},
		&models.MessageRef{},
		&models.AudioMetadata{},
		&models.SavedPlaylist{},
		&models.GuildGifs{},
		&models.RuntimeLog{},
	)
}

// DB returns the underlying GORM handle
func (dm *DatabaseManager) DB() *gorm.DB {
	return dm.db
}

// Close stops maintenance and closes the database connection
func (dm *DatabaseManager) Close() error {
	close(dm.stop)

	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartMaintenance runs periodic housekeeping: expired stream URLs in the
// metadata cache are blanked and old runtime logs are purged.
func (dm *DatabaseManager) StartMaintenance(interval, logRetention time.Duration) {
	metadataRepo := repository.NewMetadataRepository(dm.db)
	logRepo := repository.NewRuntimeLogRepository(dm.db)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-dm.stop:
				return
			case <-ticker.C:
				now := time.Now()

				purgedURLs, err := metadataRepo.PurgeExpiredStreamURLs(now)
				if err != nil {
					dm.logger.Error("Failed to purge expired stream URLs", err, nil)
				}

				purgedLogs, err := logRepo.PurgeOlderThan(now.Add(-logRetention))
				if err != nil {
					dm.logger.Error("Failed to purge old runtime logs", err, nil)
				}

				if purgedURLs > 0 || purgedLogs > 0 {
					dm.logger.Info("Database maintenance pass completed", map[string]interface{}{
						"expired_stream_urls": purgedURLs,
						"purged_logs":         purgedLogs,
					})
				}
			}
		}
	}()
}
