package main

import (
	"github.com/MarcoPoloResearchLab/tasknotify/internal/auth"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/config"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/database"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/logging"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/maintenance"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// application holds the components shared by every command.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	users     *users.Service
	tokens    *auth.TokenIssuer
	store     *notifications.Store
	retention *notifications.RetentionEnforcer
}

func openApplication(configViper *viper.Viper) (*application, error) {
	appConfig, err := config.Load(configViper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store, err := notifications.NewStore(notifications.StoreConfig{
		Database: db,
		Users:    userService,
		Logger:   logger.Named("notifications"),
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	retention, err := notifications.NewRetentionEnforcer(notifications.RetentionConfig{
		Store:      store,
		MaxPerUser: appConfig.MaxNotificationsPerUser,
		Logger:     logger.Named("retention"),
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &application{
		config:    appConfig,
		logger:    logger,
		users:     userService,
		tokens:    tokenIssuer,
		store:     store,
		retention: retention,
	}, nil
}

func (a *application) Close() {
	_ = a.logger.Sync()
}

// newScheduler registers the maintenance jobs without starting them.
func (a *application) newScheduler() (*maintenance.Scheduler, error) {
	return maintenance.NewScheduler(maintenance.Config{
		Sweeper:       a.retention,
		Purger:        a.store,
		SweepInterval: a.config.Cleanup.SweepInterval,
		PurgeHour:     a.config.Cleanup.PurgeHour,
		PurgeAgeDays:  a.config.Cleanup.PurgeAgeDays,
		Logger:        a.logger.Named("maintenance"),
	})
}
