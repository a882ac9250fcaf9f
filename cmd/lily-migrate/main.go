package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"lily/config"
)

func main() {
	databaseURL := flag.String("database", "", "database URL (overrides config and DATABASE_URL)")
	configPath := flag.String("config", "", "path to config file to read the postgres dsn from")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	command := flag.String("command", "up", "migration command: up, down, version, force")
	flag.Parse()

	url := *databaseURL
	if url == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		url = cfg.Storage.Postgres.DSN
	}
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		log.Fatal("database URL is required: use -database, -config or DATABASE_URL")
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", *migrationsPath), url)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("database is up to date")
			return
		}
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Println("migrations applied")

	case "down":
		err := m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to roll back migrations: %v", err)
		}
		log.Println("migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("failed to read version: %v", err)
		}
		log.Printf("version %d (dirty: %v)", version, dirty)

	case "force":
		if flag.NArg() < 1 {
			log.Fatal("force requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &version); err != nil {
			log.Fatalf("invalid version number: %v", err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		log.Printf("forced version to %d", version)

	default:
		log.Fatalf("unknown command %q (use: up, down, version, force)", *command)
	}
}
