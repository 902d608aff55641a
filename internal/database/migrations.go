package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationUnreadPartialIndex = "001_notifications_unread_partial_index"

// migrationRecord marks a migration as applied.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// schemaMigration covers schema the model tags cannot express.
type schemaMigration struct {
	name  string
	apply func(*gorm.DB) error
}

var schemaMigrations = []schemaMigration{
	{name: migrationUnreadPartialIndex, apply: createUnreadPartialIndex},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}

	for _, migration := range schemaMigrations {
		if _, done := applied[migration.name]; done {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func appliedMigrations(db *gorm.DB) (map[string]struct{}, error) {
	var records []migrationRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load migration records: %w", err)
	}
	names := make(map[string]struct{}, len(records))
	for _, record := range records {
		names[record.Name] = struct{}{}
	}
	return names, nil
}

// Unread listings and counts scan only the user's unread rows, newest first.
func createUnreadPartialIndex(tx *gorm.DB) error {
	return tx.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_user_unread " +
		"ON notifications (user_id, created_at DESC, id DESC) WHERE is_read = 0").Error
}
