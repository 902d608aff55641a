package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/config"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/realtime"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tasknotify-api",
		Short: "Task notification delivery service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newCreateUserCommand(), newIssueTokenCommand(), newMaintenanceCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma-separated CORS and websocket origins")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Int("max-per-user", defaults.GetInt("notification.max_per_user"), "Retention cap per user")
	cmd.PersistentFlags().Bool("cleanup-enabled", defaults.GetBool("notification.cleanup.enabled"), "Run scheduled maintenance jobs")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "notification.max_per_user", "max-per-user")
	bindFlag(cmd, "notification.cleanup.enabled", "cleanup-enabled")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	app, err := openApplication(viper.GetViper())
	if err != nil {
		return err
	}
	defer app.Close()
	appConfig := app.config
	logger := app.logger

	registry := realtime.NewRegistry(logger.Named("realtime"))
	defer registry.CloseAll()

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherConfig{
		Store:     app.store,
		Retention: app.retention,
		Users:     app.users,
		Deliverer: registry,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	inbox, err := notifications.NewInbox(notifications.InboxConfig{Store: app.store, Logger: logger})
	if err != nil {
		return err
	}
	realtimeHandler, err := realtime.NewHandler(realtime.HandlerConfig{
		Registry:       registry,
		Validator:      app.tokens,
		AllowedOrigins: appConfig.AllowedOrigins,
		WriteTimeout:   appConfig.RealtimeWriteTimeout,
		IdleTimeout:    appConfig.RealtimeIdleTimeout,
		Logger:         logger.Named("realtime"),
	})
	if err != nil {
		return err
	}

	if appConfig.Cleanup.Enabled {
		scheduler, err := app.newScheduler()
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("maintenance scheduler shutdown failed", zap.Error(err))
			}
		}()
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator: app.tokens,
		Inbox:          inbox,
		Dispatcher:     dispatcher,
		Retention:      app.retention,
		Store:          app.store,
		Registry:       registry,
		Realtime:       realtimeHandler,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
