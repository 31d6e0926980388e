// Command jobtrackd runs the job-tracking service: the HTTP API, the
// background job runner, and the enrichment worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beastmp/job-tracking/internal/api"
	"github.com/beastmp/job-tracking/internal/classify"
	"github.com/beastmp/job-tracking/internal/engine"
	"github.com/beastmp/job-tracking/internal/enrich"
	"github.com/beastmp/job-tracking/internal/ingest"
	"github.com/beastmp/job-tracking/internal/logging"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/runner"
	"github.com/beastmp/job-tracking/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "jobtrackd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Console)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	rn := runner.New(cfg.JobRetention(), log.With().Str("component", "runner").Logger())
	worker := enrich.NewWorker(st, cfg.Enrichment,
		log.With().Str("component", "enrich").Logger())
	importer := ingest.NewImporter(st, cfg.DedupWindow(),
		log.With().Str("component", "ingest").Logger())

	eng := engine.New(st, rn, worker, importer, classify.NewRuleClassifier(),
		log.With().Str("component", "engine").Logger())

	rn.Start()
	worker.Start()

	// Rebuild the enrichment queue from records still pending; the queue
	// itself does not survive a restart.
	if err := eng.Reconcile(context.Background()); err != nil {
		log.Warn().Err(err).Msg("enrichment reconciliation failed")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(eng, rn, st, log.With().Str("component", "api").Logger()).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := rn.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("job runner shutdown incomplete")
	}
	if err := worker.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("enrichment worker shutdown incomplete")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
