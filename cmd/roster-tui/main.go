package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MarcoPoloResearchLab/roster/internal/apiclient"
	"github.com/MarcoPoloResearchLab/roster/internal/cache"
	"github.com/MarcoPoloResearchLab/roster/internal/drafts"
	"github.com/MarcoPoloResearchLab/roster/internal/forms"
	"github.com/MarcoPoloResearchLab/roster/internal/logging"
	"github.com/MarcoPoloResearchLab/roster/internal/notify"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/session"
	"github.com/MarcoPoloResearchLab/roster/internal/storage"
	"github.com/MarcoPoloResearchLab/roster/internal/table"
	"github.com/MarcoPoloResearchLab/roster/internal/tui"
)

const (
	envPrefix        = "ROSTER_TUI"
	defaultAPIURL    = "http://localhost:5000/api"
	defaultSessionID = "default"
)

func main() {
	settings := viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "roster-tui",
		Short: "Browse and edit roster users in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	flags := rootCmd.Flags()
	flags.String("api-url", defaultAPIURL, "Base URL of the roster API, including /api")
	flags.String("email", "", "Sign in with this email")
	flags.String("password", "", "Password for --email")
	flags.String("session-db", "", "SQLite file for session state and drafts (memory when empty)")
	flags.String("session-id", defaultSessionID, "Session namespace inside --session-db")
	flags.String("table-preset", "", "YAML file with hidden columns, order, widths and headers")
	flags.Int("page-size", 10, "Rows per page")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to this file (discarded when empty)")
	if err := settings.BindPFlags(flags); err != nil {
		panic(err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, settings *viper.Viper) error {
	logger, err := logging.NewFileLogger(settings.GetString("log-level"), settings.GetString("log-file"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStorage(settings.GetString("session-db"), settings.GetString("session-id"))
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := apiclient.New(apiclient.Config{BaseURL: settings.GetString("api-url"), Logger: logger})
	if err != nil {
		return err
	}

	var program *tea.Program
	sessions, err := session.NewManager(session.Config{
		Client:  client,
		Storage: store,
		Logger:  logger,
		OnExpired: func(err error) {
			if program != nil {
				program.Send(tui.SessionExpired(err))
			}
		},
	})
	if err != nil {
		return err
	}
	identity, err := signIn(ctx, sessions, settings.GetString("email"), settings.GetString("password"))
	if err != nil {
		return err
	}

	var customization table.Customization
	if path := settings.GetString("table-preset"); path != "" {
		if customization, err = table.LoadPreset(path); err != nil {
			return err
		}
	}

	schema := records.NewSchema(nil)
	users, err := cache.New[records.Record]("users", client.UsersSource(), cache.WithLogger(logger))
	if err != nil {
		return err
	}
	registry := cache.NewRegistry()
	if err := cache.Register(registry, users); err != nil {
		return err
	}
	defer registry.Wait()

	draftStore, err := drafts.New(ctx, store, drafts.DefaultNamespace, schema.ValidateRecord, drafts.WithLogger(logger))
	if err != nil {
		return err
	}
	bridge, err := forms.NewBridge(forms.BridgeConfig{Schema: schema, Cache: users, Drafts: draftStore, Logger: logger})
	if err != nil {
		return err
	}

	model, err := tui.New(ctx, tui.Config{
		Users:         users,
		Drafts:        draftStore,
		Bridge:        bridge,
		Notifications: notify.NewCenter(nil),
		Customization: customization,
		PageSize:      settings.GetInt("page-size"),
		Identity:      identity,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	sessions.Watch(ctx)
	defer sessions.Stop()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	logger.Info("roster tui exited")
	return nil
}

// signIn logs in when credentials are given and otherwise restores a previous
// session. Browsing without an identity is allowed.
func signIn(ctx context.Context, sessions *session.Manager, email, password string) (string, error) {
	if email != "" {
		identity, err := sessions.Login(ctx, email, password)
		if err != nil {
			return "", fmt.Errorf("login failed: %w", err)
		}
		return describe(identity), nil
	}
	identity, ok, err := sessions.Restore(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return describe(identity), nil
}

func describe(identity session.Identity) string {
	if identity.Name == "" {
		return identity.Email
	}
	return fmt.Sprintf("%s <%s>", identity.Name, identity.Email)
}

func openStorage(path, sessionID string) (storage.Storage, func(), error) {
	if path == "" {
		return storage.NewMemory(), func() {}, nil
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, nil, fmt.Errorf("open session database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewSQLite(db, sessionID)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := sqlDB.Close(); err != nil {
			zap.L().Warn("failed to close session database", zap.Error(err))
		}
	}, nil
}
