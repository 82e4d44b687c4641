package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/kdimtricp/arcwatch/internal/config"
	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [flags] up|down [n]|version|force <version>\n")
	flag.PrintDefaults()
}

func main() {
	var (
		dbType = flag.String("db", "", "Database type (postgres or sqlite), overrides config")
		path   = flag.String("sqlite", "", "SQLite file path, overrides config")
	)
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	dbConfig := cfg.Database
	if *dbType != "" {
		dbConfig.Type = *dbType
	}
	if *path != "" {
		dbConfig.SQLitePath = *path
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch cmd {
	case "up":
		if err := migrator.Up(); err != nil {
			logging.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	case "down":
		n := 1
		if arg := flag.Arg(1); arg != "" {
			if n, err = strconv.Atoi(arg); err != nil || n < 1 {
				logging.Fatal().Str("arg", arg).Msg("down expects a positive step count")
			}
		}
		if err := migrator.Down(n); err != nil {
			logging.Fatal().Err(err).Msg("Failed to roll back migrations")
		}
	case "force":
		v, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			logging.Fatal().Str("arg", flag.Arg(1)).Msg("force expects a version number")
		}
		if err := migrator.Force(v); err != nil {
			logging.Fatal().Err(err).Msg("Failed to force version")
		}
	case "version":
	default:
		usage()
		os.Exit(2)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to read migration version")
	}
	fmt.Printf("version %d (dirty: %t)\n", version, dirty)
}
