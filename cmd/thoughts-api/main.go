package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quietink/thoughts/backend/internal/auth"
	"github.com/quietink/thoughts/backend/internal/config"
	"github.com/quietink/thoughts/backend/internal/database"
	"github.com/quietink/thoughts/backend/internal/logging"
	"github.com/quietink/thoughts/backend/internal/markdown"
	"github.com/quietink/thoughts/backend/internal/notify"
	"github.com/quietink/thoughts/backend/internal/server"
	"github.com/quietink/thoughts/backend/internal/thoughts"
	"github.com/quietink/thoughts/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "thoughts-api",
		Short: "Thoughts journal backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().Int64("creator-id", defaults.GetInt64("creator.id"), "Bootstrap creator id")
	cmd.PersistentFlags().String("unlock-secret", "", "Unlock passphrase (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "creator.id", "creator-id")
	bindFlag(cmd, "unlock.secret", "unlock-secret")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
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
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	// The bootstrap account must exist before any scoped query runs; a
	// failure here leaves the store unusable, so startup aborts.
	if err := usersService.EnsureUser(ctx, appConfig.CreatorID); err != nil {
		logger.Error("bootstrap user creation failed", zap.Error(err))
		return err
	}

	thoughtsService, err := thoughts.NewService(thoughts.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	unlockIssuer, err := auth.NewUnlockIssuer(auth.UnlockIssuerConfig{
		UnlockSecret:  appConfig.UnlockSecret,
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "thoughts-auth",
		Audience:      "thoughts-api",
		SessionTTL:    appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionGate:     unlockIssuer,
		ThoughtsService: thoughtsService,
		Broadcaster:     notify.NewBroadcaster(),
		Renderer:        markdown.NewRenderer(),
		CreatorID:       appConfig.CreatorID,
		Logger:          logger,
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
