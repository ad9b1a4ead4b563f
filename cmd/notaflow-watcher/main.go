package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"notaflow/internal/config"
	"notaflow/internal/learning"
	"notaflow/internal/matching"
	"notaflow/internal/pipeline"
	"notaflow/internal/refstore"
	"notaflow/internal/storage"
	"notaflow/internal/units"
	"notaflow/internal/vision"
	"notaflow/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	must(cfg.Require("VISION_API_KEY", cfg.VisionAPIKey))

	refs := refstore.New(cfg.ProductsCSV, cfg.SuppliersCSV, cfg.BuyersCSV, cfg.UnitsCSV, log)
	refs.Load()
	learned := learning.Open(cfg.LearnedMappingsCSV, cfg.ConversionsCSV, log)
	matcher := matching.NewMatcher(cfg, refs, learned)
	converter := units.NewConverter(learned)
	enricher := pipeline.NewEnricher(cfg, refs, matcher, converter, learned, log)

	db, err := storage.Open(cfg.JournalDBPath)
	must(err)
	defer db.Close()

	svc := watcher.New(&cfg, vision.NewClient(cfg, log), enricher, db, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		must(err)
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
