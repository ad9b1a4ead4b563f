package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"notaflow/internal/config"
	"notaflow/internal/erp"
	"notaflow/internal/learning"
	"notaflow/internal/matching"
	"notaflow/internal/pipeline"
	"notaflow/internal/refstore"
	"notaflow/internal/storage"
	"notaflow/internal/units"
	"notaflow/internal/vision"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := newLogger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	refs := refstore.New(cfg.ProductsCSV, cfg.SuppliersCSV, cfg.BuyersCSV, cfg.UnitsCSV, log)
	refs.Load()
	learned := learning.Open(cfg.LearnedMappingsCSV, cfg.ConversionsCSV, log)
	matcher := matching.NewMatcher(cfg, refs, learned)
	converter := units.NewConverter(learned)
	enricher := pipeline.NewEnricher(cfg, refs, matcher, converter, learned, log)

	cmd := os.Args[1]
	switch cmd {
	case "invoice:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		image := fs.String("image", "", "invoice photo or pdf")
		out := fs.String("out", "", "xlsx output path")
		submit := fs.Bool("submit", false, "send to the ERP when fully matched")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*image) == "" {
			must(fmt.Errorf("--image is required"))
		}

		ctx := context.Background()
		doc, ok, err := extractFile(ctx, cfg, log, *image)
		must(err)
		if !ok {
			must(fmt.Errorf("could not read an invoice from %s", *image))
		}

		inv, err := enricher.Enrich(doc)
		must(err)

		db, err := storage.Open(cfg.JournalDBPath)
		must(err)
		defer db.Close()
		id, err := db.InsertInvoice(inv, filepath.Base(*image))
		must(err)

		fmt.Printf("invoice %d\n%s", id, formatInvoice(inv))

		if *out != "" {
			rows := pipeline.BuildExportRows(inv)
			must(pipeline.ExportRowsToXLSX(rows, *out))
			fmt.Printf("exported to %s\n", *out)
		}
		if *submit {
			client := erp.NewClient(cfg, log)
			docID, err := client.SubmitInvoice(ctx, inv)
			_ = db.RecordSubmission(id, docID, err)
			must(err)
			fmt.Printf("submitted document %s\n", docID)
		}
	case "invoice:submit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "journal invoice id")
		_ = fs.Parse(os.Args[2:])
		if *id <= 0 {
			must(fmt.Errorf("--id is required"))
		}
		db, err := storage.Open(cfg.JournalDBPath)
		must(err)
		defer db.Close()
		inv, err := db.GetInvoice(*id)
		must(err)
		if inv == nil {
			must(fmt.Errorf("invoice %d not found", *id))
		}
		client := erp.NewClient(cfg, log)
		docID, err := client.SubmitInvoice(context.Background(), inv)
		_ = db.RecordSubmission(*id, docID, err)
		must(err)
		fmt.Printf("submitted document %s\n", docID)
	case "invoice:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "journal invoice id")
		out := fs.String("out", "", "xlsx output path")
		_ = fs.Parse(os.Args[2:])
		if *id <= 0 {
			must(fmt.Errorf("--id is required"))
		}
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		db, err := storage.Open(cfg.JournalDBPath)
		must(err)
		defer db.Close()
		rows, err := db.ExportRows(*id)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("invoice %d not found", *id))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d lines to %s\n", len(rows), *out)
	case "learn:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "raw invoice name")
		productID := fs.String("product-id", "", "catalog product id")
		corrected := fs.String("corrected", "", "corrected name (optional)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" || strings.TrimSpace(*productID) == "" {
			must(fmt.Errorf("--name and --product-id are required"))
		}
		if _, ok := refs.ProductByID(*productID); !ok {
			must(fmt.Errorf("unknown product id %s", *productID))
		}
		must(learned.Record(*name, *productID, *corrected))
		fmt.Printf("learned %q -> %s (%d mappings)\n", *name, *productID, learned.MappingCount())
	case "convert:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		source := fs.String("source", "", "source unit")
		target := fs.String("target", "", "target unit")
		factor := fs.Float64("factor", 0, "multiplier applied to quantities")
		productID := fs.String("product-id", "", "product id (empty for all products)")
		_ = fs.Parse(os.Args[2:])
		must(learned.RecordConversion(*productID, *source, *target, *factor))
		fmt.Printf("conversion %s -> %s x%g saved\n", *source, *target, *factor)
	case "match":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "raw invoice name")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}
		id, score := matcher.Match(*name)
		if id == "" {
			fmt.Printf("no match (best score %.2f)\n", score)
			return
		}
		product, _ := refs.ProductByID(id)
		fmt.Printf("%s  %s  score=%.2f\n", id, product.Name, score)
	default:
		usage()
		os.Exit(1)
	}
}

func extractFile(ctx context.Context, cfg config.Config, log *logrus.Logger, path string) (*vision.Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	client := vision.NewClient(cfg, log)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := vision.ExtractPDFText(data)
		if err != nil {
			return nil, false, err
		}
		return client.ExtractInvoiceText(ctx, text)
	}
	return client.ExtractInvoice(ctx, data)
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
	return log
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: notaflow <command> [flags]

commands:
  invoice:process   --image=FILE [--out=FILE.xlsx] [--submit]
  invoice:submit    --id=N
  invoice:export    --id=N --out=FILE.xlsx
  learn:add         --name=RAW --product-id=ID [--corrected=NAME]
  convert:set       --source=UNIT --target=UNIT --factor=F [--product-id=ID]
  match             --name=RAW`)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
