package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"notaflow/internal/config"
	"notaflow/internal/pipeline"
	"notaflow/internal/storage"
	"notaflow/internal/vision"
)

// Extractor is the slice of the vision client the watcher needs.
type Extractor interface {
	ExtractInvoice(ctx context.Context, image []byte) (*vision.Document, bool, error)
	ExtractInvoiceText(ctx context.Context, text string) (*vision.Document, bool, error)
}

// Service polls a drop directory for invoice scans, runs each file
// through extraction and enrichment, journals the result and moves the
// file to processed/ or failed/.
type Service struct {
	cfg      *config.Config
	vision   Extractor
	enricher *pipeline.Enricher
	journal  *storage.DB
	log      *logrus.Logger
}

func New(cfg *config.Config, vis Extractor, enricher *pipeline.Enricher, journal *storage.DB, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{cfg: cfg, vision: vis, enricher: enricher, journal: journal, log: log}
}

// Run polls until ctx is cancelled. Per-file failures are logged and the
// file is parked under failed/; the loop keeps going.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}

	interval := time.Duration(s.cfg.WatchIntervalSec) * time.Second
	s.log.WithFields(logrus.Fields{
		"dir":      s.cfg.WatchDir,
		"interval": interval.String(),
	}).Info("watcher started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.scanOnce(ctx); err != nil {
			s.log.WithError(err).Error("scan failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) ensureDirs() error {
	for _, dir := range []string{s.cfg.WatchDir, s.processedDir(), s.failedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Service) processedDir() string { return filepath.Join(s.cfg.WatchDir, "processed") }
func (s *Service) failedDir() string    { return filepath.Join(s.cfg.WatchDir, "failed") }

func (s *Service) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(s.cfg.WatchDir)
	if err != nil {
		return err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !supportedFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	if len(names) > s.cfg.WatchBatch {
		names = names[:s.cfg.WatchBatch]
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path := filepath.Join(s.cfg.WatchDir, name)
		if err := s.processFile(ctx, path); err != nil {
			s.log.WithError(err).WithField("file", name).Error("processing failed")
			s.park(path, s.failedDir())
			continue
		}
		s.park(path, s.processedDir())
	}
	return nil
}

func (s *Service) processFile(ctx context.Context, path string) error {
	log := s.log.WithField("file", filepath.Base(path))
	log.Info("processing")

	doc, ok, err := s.extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if !ok {
		return fmt.Errorf("extract: unusable model output")
	}

	inv, err := s.enricher.Enrich(doc)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}

	id, err := s.journal.InsertInvoice(inv, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	log.WithFields(logrus.Fields{
		"invoice":   id,
		"supplier":  inv.SupplierName,
		"matched":   inv.MatchedCount,
		"unmatched": inv.UnmatchedCount,
	}).Info("journaled")

	if s.cfg.WatchAutoExport {
		out := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("invoice_%d.xlsx", id))
		rows := pipeline.BuildExportRows(inv)
		if err := pipeline.ExportRowsToXLSX(rows, out); err != nil {
			log.WithError(err).Warn("export failed")
		} else {
			log.WithField("out", out).Info("exported")
		}
	}
	return nil
}

func (s *Service) extract(ctx context.Context, path string) (*vision.Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := vision.ExtractPDFText(data)
		if err != nil {
			return nil, false, err
		}
		return s.vision.ExtractInvoiceText(ctx, text)
	}
	return s.vision.ExtractInvoice(ctx, data)
}

func (s *Service) park(path, dir string) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		s.log.WithError(err).WithField("file", path).Warn("could not move file")
	}
}

func supportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".pdf":
		return true
	}
	return false
}
