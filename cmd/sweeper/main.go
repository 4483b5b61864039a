// Package main is the entry point for the factor sweep runner. It
// builds the cleaned factor panel, evaluates the (feature count x
// lambda) Sharpe surface, persists the run and optionally serves the
// results API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorsweep/internal/config"
	"github.com/aristath/factorsweep/internal/database"
	"github.com/aristath/factorsweep/internal/domain"
	"github.com/aristath/factorsweep/internal/modules/dataset"
	"github.com/aristath/factorsweep/internal/modules/results"
	"github.com/aristath/factorsweep/internal/modules/sweep"
	"github.com/aristath/factorsweep/internal/server"
	"github.com/aristath/factorsweep/pkg/logger"
)

func main() {
	specPath := flag.String("spec", "", "path to the sweep spec YAML (overrides SWEEP_SPEC)")
	serve := flag.Bool("serve", false, "serve the results API after the sweep")
	serveOnly := flag.Bool("serve-only", false, "skip the sweep and only serve previously persisted runs")
	noCache := flag.Bool("no-cache", false, "ignore the panel snapshot and rebuild from the CSVs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting factor sweep")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "results.db"),
		Name: "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer db.Close()

	store, err := results.NewStore(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results store")
	}

	// Cancelled by SIGINT/SIGTERM; the sweep checks it between days.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*serveOnly {
		if *specPath != "" {
			cfg.SpecPath = *specPath
		}
		spec, err := config.LoadSpec(cfg.SpecPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load sweep spec")
		}

		panel := loadPanel(log, spec, *noCache)

		runner := sweep.NewRunner(spec.Sweep, log)
		started := time.Now()
		surface, err := runner.Run(ctx, panel)
		if err != nil {
			log.Fatal().Err(err).Msg("Sweep failed")
		}
		log.Info().Dur("elapsed", time.Since(started)).Msg("Sweep finished")

		sweep.RenderTable(os.Stdout, surface)

		if spec.Output.CSVDir != "" {
			if err := writeCSVs(spec.Output.CSVDir, surface); err != nil {
				log.Error().Err(err).Msg("Failed to write surface CSVs")
			}
		}

		runID, err := store.SaveRun(results.RunMeta{
			Seed:          spec.Sweep.Seed,
			UsePLS:        spec.Sweep.UsePLS,
			PLSComponents: spec.Sweep.PLSComponents,
			ProxyWindow:   spec.Sweep.ProxyWindow,
		}, surface)
		if err != nil {
			log.Error().Err(err).Msg("Failed to persist sweep run")
		} else {
			log.Info().Str("run_id", runID).Msg("Run persisted")
		}
	}

	if !*serve && !*serveOnly {
		return
	}

	srv := server.New(server.Config{
		Log:       log,
		ResultsDB: db,
		Store:     store,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}

// loadPanel returns the cleaned panel, preferring the snapshot cache
// when it is present and matches the requested factor set.
func loadPanel(log zerolog.Logger, spec *config.SweepSpec, noCache bool) *domain.Panel {
	cachePath := spec.Output.CachePath
	wantFactors := spec.Panel.FactorNames()

	if cachePath != "" && !noCache {
		panel, err := dataset.LoadPanel(cachePath, wantFactors)
		if err == nil {
			log.Info().Str("path", cachePath).Int("rows", len(panel.Rows)).Msg("Panel loaded from snapshot")
			return panel
		}
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Panel snapshot unusable, rebuilding from CSVs")
		}
	}

	loader := dataset.NewLoader(log)
	panel, err := loader.BuildPanel(spec.Panel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build panel")
	}

	if cachePath != "" {
		if err := dataset.SavePanel(cachePath, panel); err != nil {
			log.Warn().Err(err).Msg("Failed to write panel snapshot")
		}
	}
	return panel
}

// writeCSVs writes one grid CSV per metric into dir.
func writeCSVs(dir string, surface *domain.Surface) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, metric := range []sweep.Metric{sweep.MetricMean, sweep.MetricStd, sweep.MetricSharpe} {
		f, err := os.Create(filepath.Join(dir, string(metric)+".csv"))
		if err != nil {
			return err
		}
		if err := sweep.WriteCSV(f, surface, metric); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
