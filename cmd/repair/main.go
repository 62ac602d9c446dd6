// Command repair runs one consistency pass over household membership and
// prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/dukerupert/housemate/internal/config"
	"github.com/dukerupert/housemate/internal/database"
	"github.com/dukerupert/housemate/internal/logging"
	"github.com/dukerupert/housemate/internal/repair"
	"github.com/dukerupert/housemate/internal/store"
)

func main() {
	cfg, err := config.LoadStorage()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dbPath := flag.String("db", cfg.DBPath, "path to the SQLite database")
	dryRun := flag.Bool("dry-run", false, "report fixes without writing them")
	flag.Parse()

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(logger, *dbPath, *dryRun); err != nil {
		logger.Error("repair pass failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, dbPath string, dryRun bool) error {
	db, err := database.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	job := repair.NewJob(store.New(db), nil, logger.With("component", "repair"))
	report, runErr := job.Run(context.Background(), dryRun)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", "error", err)
	}
	return runErr
}
