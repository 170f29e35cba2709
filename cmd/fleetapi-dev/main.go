package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/devapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/store/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagSigningKey     = "jwt-signing-key"
	flagTokenIssuer    = "jwt-issuer"
	flagRequireAuth    = "require-auth"
	flagSeed           = "seed"
	envPrefix          = "FLEETAPI"
	envFile            = ".env.local"
	defaultDatabaseURL = "sqlite:///tmp/gonzofleet.db"
	driverPostgres     = "postgres"
	driverSQLite       = "sqlite"
)

type runtimeConfig struct {
	DatabaseURL string
	Seed        bool
	API         devapi.Config
}

func main() {
	_ = godotenv.Load(envFile)
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetapi-dev: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "fleetapi-dev",
		Short:         "Development implementation of the fleet REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, ":8000", "HTTP listen address")
	cmd.Flags().String(flagSigningKey, "", "HS256 key for bearer tokens")
	cmd.Flags().String(flagTokenIssuer, "", "expected bearer token issuer")
	cmd.Flags().Bool(flagRequireAuth, false, "reject requests without a valid bearer token")
	cmd.Flags().Bool(flagSeed, false, "load demo drivers, applications and payments into an empty database")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagDatabaseURL, flagListenAddr, flagSigningKey, flagTokenIssuer, flagRequireAuth, flagSeed} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.Seed = v.GetBool(flagSeed)
	cfg.API = devapi.Config{
		ListenAddr:  strings.TrimSpace(v.GetString(flagListenAddr)),
		SigningKey:  v.GetString(flagSigningKey),
		TokenIssuer: strings.TrimSpace(v.GetString(flagTokenIssuer)),
		RequireAuth: v.GetBool(flagRequireAuth),
	}
	return cfg.API.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	if cfg.Seed {
		if err := seedIfEmpty(ctx, store, logger); err != nil {
			return err
		}
	}
	return devapi.Run(ctx, cfg.API, store, devapi.NewLogMessenger(logger), logger)
}

func seedIfEmpty(ctx context.Context, store *gormstore.Store, logger *zap.Logger) error {
	drivers, err := store.ListDrivers(ctx, gormstore.DriverFilter{Page: gormstore.Page{Limit: 1}})
	if err != nil {
		return fmt.Errorf("seed check: %w", err)
	}
	if len(drivers) > 0 {
		logger.Info("database already populated, skipping seed")
		return nil
	}
	if err := store.Seed(ctx, gormstore.DemoSeed(time.Now().UTC())); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("demo data seeded")
	return nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "gonzofleet.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// Postgres schemas are managed by the production backend's migrations.
func prepareSchema(db *gorm.DB, driver string) error {
	if driver != driverSQLite {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
