package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/api"
	"github.com/punchamoorthee/bankfeed/internal/categorizer"
	"github.com/punchamoorthee/bankfeed/internal/config"
	"github.com/punchamoorthee/bankfeed/internal/extractor"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/normalizer"
	"github.com/punchamoorthee/bankfeed/internal/service"
	"github.com/punchamoorthee/bankfeed/internal/store"
	"github.com/sirupsen/logrus"
)

// backend is what the API needs from either store implementation.
type backend interface {
	service.TransactionStore
	categorizer.RuleSource
	api.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Layers
	db, closeDB, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Unable to initialize store")
	}
	defer closeDB()

	var ex extractor.Extractor
	if cfg.ExtractionEnabled() {
		gemini, err := extractor.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.AIModel, cfg.AITimeout, log)
		if err != nil {
			log.WithError(err).Fatal("Unable to create email extractor")
		}
		ex = gemini
	} else {
		log.Warn("GEMINI_API_KEY not set, /webhook/email will reject all input")
	}

	cache := categorizer.NewCache(db, cfg.RulesCacheTTL, log)
	pipeline := service.NewPipeline(
		normalizer.New(cfg.Location),
		categorizer.New(cache, log),
		db,
		ex,
		log,
	)
	reporter := service.NewReporter(db, cfg.Location, log)
	handler := api.NewHandler(pipeline, db, cache, reporter, log)

	if cfg.ReportSchedule != "" {
		scheduler, err := service.NewScheduler(cfg.ReportSchedule, cfg.Location, service.NewReportJob(reporter, log))
		if err != nil {
			log.WithError(err).Fatal("Unable to schedule monthly report")
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		log.WithField("schedule", cfg.ReportSchedule).Info("Monthly report scheduled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":   cfg.Port,
		"env":    cfg.Env,
		"driver": cfg.StoreDriver,
	}).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Server stopped")
	}
	log.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := store.NewMemoryStore(cfg.EnforceUniqueKey)
		if cfg.RulesFile != "" {
			rules, err := store.LoadRulesFile(cfg.RulesFile)
			if err != nil {
				return nil, nil, err
			}
			if _, err := mem.InsertRules(ctx, rules); err != nil {
				return nil, nil, err
			}
			log.WithField(logging.FieldCount, len(rules)).Info("Category rules loaded into memory store")
		}
		return mem, func() {}, nil

	default:
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(ctx, cfg.EnforceUniqueKey); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return pg, pg.Close, nil
	}
}
