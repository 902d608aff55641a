package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Pragmas applied to every connection opened by the driver.
var connectionPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(ON)",
}

// OpenSQLite opens the notification database in WAL mode and brings the
// schema up to date.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dataSourceName(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&notifications.Notification{}, &users.User{}, &migrationRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}

func dataSourceName(path string) string {
	var builder strings.Builder
	builder.WriteString(path)
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	for _, pragma := range connectionPragmas {
		builder.WriteString(separator)
		builder.WriteString("_pragma=")
		builder.WriteString(pragma)
		separator = "&"
	}
	return builder.String()
}
