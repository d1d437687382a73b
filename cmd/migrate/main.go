// Package main applies or inspects the dispatcher schema migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/infrastructure/migrate"
)

const usage = "usage: migrate [-config config.yaml] [-path ./migrations] [-steps N] up|down|all|rollback|version"

func main() {
	var (
		configPath     string
		migrationsPath string
		steps          int
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Configuration file used when DATABASE_URL is unset")
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (defaults to database.migrations_path)")
	flag.IntVar(&steps, "steps", 1, "Number of migrations for up and down")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal(usage)
	}
	if steps < 1 {
		log.Fatal("-steps must be at least 1")
	}

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	databaseURL, defaultPath, err := resolveDatabase(configPath)
	if err != nil {
		logger.Fatal("Failed to resolve database", zap.Error(err))
	}
	if migrationsPath == "" {
		migrationsPath = defaultPath
	}

	runner := migrate.NewRunner(&migrate.Config{
		DatabaseURL:    databaseURL,
		MigrationsPath: migrationsPath,
	}, logger)

	command := flag.Arg(0)
	switch command {
	case "up":
		err = runner.Steps(steps)
	case "down":
		err = runner.Steps(-steps)
	case "all":
		err = runner.Run()
	case "rollback":
		err = runner.Rollback()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = runner.Version()
		if err == nil {
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Printf("Current version: %d (%s)\n", version, state)
		}
	default:
		logger.Fatal("Unknown command", zap.String("command", command), zap.String("usage", usage))
	}

	if err != nil {
		logger.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

// resolveDatabase prefers DATABASE_URL and falls back to the database
// section of the configuration file.
func resolveDatabase(configPath string) (url, migrationsPath string, err error) {
	if url = os.Getenv("DATABASE_URL"); url != "" {
		return url, "./migrations", nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", "", fmt.Errorf("DATABASE_URL is unset and config could not be loaded: %w", err)
	}
	return cfg.Database.GetURL(), cfg.Database.MigrationsPath, nil
}
