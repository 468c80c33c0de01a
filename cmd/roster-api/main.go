package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/config"
	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/logging"
	"github.com/MarcoPoloResearchLab/roster/internal/products"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/server"
	"github.com/MarcoPoloResearchLab/roster/internal/users"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roster-api",
		Short: "Roster records and accounts API",
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
	cmd.PersistentFlags().Bool("seed-products", defaults.GetBool("database.seed_products"), "Seed the product catalogue on first start")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Session token lifetime")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Bool("cookie-secure", defaults.GetBool("auth.cookie_secure"), "Mark the session cookie Secure")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().Bool("metrics", defaults.GetBool("metrics.enabled"), "Expose Prometheus metrics on /metrics")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.seed_products", "seed-products")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.cookie_secure", "cookie-secure")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "metrics.enabled", "metrics")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, database.Options{SeedProducts: appConfig.SeedProducts}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	schema := records.NewSchema(time.Now)

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Schema:   schema,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	productService, err := products.NewService(products.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	accountService, err := auth.NewAccountService(auth.AccountServiceConfig{
		Database: db,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	var metrics *server.Metrics
	if appConfig.MetricsEnabled {
		metrics = server.NewMetrics()
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:          userService,
		Products:       productService,
		Accounts:       accountService,
		Tokens:         tokenIssuer,
		Sessions:       sessionValidator,
		Realtime:       server.NewRealtimeDispatcher(),
		Metrics:        metrics,
		AllowedOrigins: appConfig.AllowedOrigins,
		CookieSecure:   appConfig.CookieSecure,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
