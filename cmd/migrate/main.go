// Command migrate applies or reverts the SuddenConnect database schema.
//
//	migrate            apply every pending migration
//	migrate -down 1    revert the last migration
//	migrate -version   print the applied schema version
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Kunalchandra007/SuddenConnect/internal/config"
	"github.com/Kunalchandra007/SuddenConnect/internal/history"
	"github.com/Kunalchandra007/SuddenConnect/internal/logger"
	"go.uber.org/zap"
)

func main() {
	down := flag.Int("down", 0, "number of migrations to revert")
	version := flag.Bool("version", false, "print the schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := history.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	switch {
	case *version:
	case *down > 0:
		if err := history.Rollback(db, *down); err != nil {
			log.Fatal("rollback failed", zap.Error(err))
		}
		log.Info("migrations reverted", zap.Int("steps", *down))
	default:
		if err := history.Migrate(db); err != nil {
			log.Fatal("migrate failed", zap.Error(err))
		}
		log.Info("migrations applied")
	}

	v, dirty, err := history.Version(db)
	if err != nil {
		log.Fatal("read schema version", zap.Error(err))
	}
	log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
}
