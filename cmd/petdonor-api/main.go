package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petdonor/backend/internal/auth"
	"github.com/petdonor/backend/internal/config"
	"github.com/petdonor/backend/internal/database"
	"github.com/petdonor/backend/internal/logging"
	"github.com/petdonor/backend/internal/server"
	"github.com/petdonor/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "petdonor-api",
		Short: "PetDonor blood-donation platform backend",
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
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Token TTL in minutes")
	cmd.PersistentFlags().Int("bcrypt-cost", defaults.GetInt("auth.bcrypt_cost"), "Password hash work factor")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("vk-service-token", "", "VK service token; empty disables social login")
	cmd.PersistentFlags().String("vk-exchange-url", defaults.GetString("vk.exchange_url"), "VK silent token exchange URL")
	cmd.PersistentFlags().String("vk-profile-url", defaults.GetString("vk.profile_url"), "VK profile fetch URL")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.bcrypt_cost", "bcrypt-cost")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "vk.service_token", "vk-service-token")
	bindFlag(cmd, "vk.exchange_url", "vk-exchange-url")
	bindFlag(cmd, "vk.profile_url", "vk-profile-url")
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

	codec, err := auth.NewCodec(auth.CodecConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	userRepository, err := users.NewRepository(db)
	if err != nil {
		return err
	}
	tokenStore, err := auth.NewGormTokenStore(db)
	if err != nil {
		return err
	}

	var identity auth.IdentityVerifier
	if appConfig.SocialLoginEnabled() {
		vkVerifier, err := auth.NewVKVerifier(auth.VKVerifierConfig{
			ServiceToken: appConfig.VKServiceToken,
			ExchangeURL:  appConfig.VKExchangeURL,
			ProfileURL:   appConfig.VKProfileURL,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		identity = vkVerifier
	} else {
		logger.Warn("vk service token not configured, social login disabled")
	}

	authService, err := auth.NewService(auth.ServiceConfig{
		Users:    userRepository,
		Tokens:   tokenStore,
		Codec:    codec,
		Hasher:   auth.NewPasswordHasher(appConfig.BcryptCost),
		Identity: identity,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Auth:   authService,
		Users:  userRepository,
		Logger: logger,
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
