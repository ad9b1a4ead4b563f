package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"notaflow/internal"
	"notaflow/internal/config"
	"notaflow/internal/learning"
	"notaflow/internal/matching"
	"notaflow/internal/refstore"
	"notaflow/internal/units"
	"notaflow/internal/vision"
)

const (
	errInvalidUnit     = "invalid_unit"
	errInvalidQuantity = "invalid_quantity"
	errInvalidPrice    = "invalid_price"
)

// EnrichmentError is the only invoice-level hard failure: the raw payload
// was structurally unusable. Per-line trouble never raises it.
type EnrichmentError struct {
	Reason string
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed: %s", e.Reason)
}

// Enricher turns a parsed vision document into a reconciled Invoice:
// per-line matching, validation and unit conversion, then invoice-level
// supplier/buyer matching and aggregate recomputation.
type Enricher struct {
	cfg       config.Config
	refs      *refstore.Store
	matcher   *matching.Matcher
	converter *units.Converter
	learned   *learning.Store
	log       logrus.FieldLogger
}

func NewEnricher(cfg config.Config, refs *refstore.Store, matcher *matching.Matcher, converter *units.Converter, learned *learning.Store, log logrus.FieldLogger) *Enricher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Enricher{cfg: cfg, refs: refs, matcher: matcher, converter: converter, learned: learned, log: log}
}

// Enrich processes lines in OCR order; line numbers are user-facing and
// the order is never changed here.
func (e *Enricher) Enrich(doc *vision.Document) (*internal.Invoice, error) {
	if doc == nil {
		return nil, &EnrichmentError{Reason: "nil document"}
	}
	if doc.Items == nil {
		return nil, &EnrichmentError{Reason: "document has no items collection"}
	}

	inv := &internal.Invoice{
		SupplierName: doc.SupplierName,
		BuyerName:    doc.BuyerName,
		Date:         doc.Date,
		Lines:        make([]internal.InvoiceLine, 0, len(doc.Items)),
	}

	if id, score := e.matcher.MatchSupplier(doc.SupplierName); id != "" {
		inv.SupplierID = id
		e.log.WithFields(logrus.Fields{"supplier": doc.SupplierName, "id": id, "score": score}).Debug("supplier matched")
	}
	if doc.BuyerName != "" {
		if id, _ := e.matcher.MatchBuyer(doc.BuyerName); id != "" {
			inv.BuyerID = id
		}
	}

	for _, item := range doc.Items {
		inv.Lines = append(inv.Lines, e.EnrichLine(item))
	}

	inv.Recount()
	inv.EnrichedAt = time.Now().Format(time.RFC3339)
	e.log.WithFields(logrus.Fields{
		"lines":     len(inv.Lines),
		"matched":   inv.MatchedCount,
		"unmatched": inv.UnmatchedCount,
	}).Info("invoice enriched")
	return inv, nil
}

// EnrichLine runs the full per-line stage sequence on one OCR item.
func (e *Enricher) EnrichLine(item vision.Item) internal.InvoiceLine {
	line := internal.InvoiceLine{
		RawName:  item.Name,
		Name:     item.Name,
		Quantity: item.Quantity,
		Unit:     item.Unit,
		Price:    item.Price,
	}
	e.resolveLine(&line, line.RawName)
	return line
}

// ReEnrichLine re-runs matching, validation and conversion on one line
// after a correction, matching on the possibly corrected Name. The
// invoice aggregates are rebuilt afterwards.
func (e *Enricher) ReEnrichLine(inv *internal.Invoice, idx int) {
	if idx < 0 || idx >= len(inv.Lines) {
		return
	}
	line := &inv.Lines[idx]
	line.ProductID = ""
	line.MatchScore = 0
	if line.ConversionApplied {
		line.Quantity = line.OriginalQuantity
		line.Unit = line.OriginalUnit
		line.OriginalQuantity = 0
		line.OriginalUnit = ""
		line.ConversionApplied = false
	}
	e.resolveLine(line, line.Name)
	inv.Recount()
}

// ApplyProduct pins a human-confirmed product to a line. The match is
// certain by definition, so the score is 1.0; validation and conversion
// still run so a confirmed product with a bad unit stays unmatched.
func (e *Enricher) ApplyProduct(inv *internal.Invoice, idx int, productID string) {
	if idx < 0 || idx >= len(inv.Lines) {
		return
	}
	line := &inv.Lines[idx]
	line.ProductID = productID
	line.MatchScore = 1.0
	if p, ok := e.refs.ProductByID(productID); ok {
		line.Name = p.Name
	}

	e.validateLine(line)
	line.Resolve()

	if !line.ConversionApplied && line.Unit != "" && line.ValidationError == errInvalidUnit {
		if entry, ok := e.converter.FindFor(line.ProductID, line.Unit); ok {
			line.OriginalQuantity = line.Quantity
			line.OriginalUnit = line.Unit
			line.Quantity = line.Quantity * entry.Factor
			line.Unit = entry.TargetUnit
			line.ConversionApplied = true
			e.validateLine(line)
			line.Resolve()
		}
	}
	inv.Recount()
}

func (e *Enricher) resolveLine(line *internal.InvoiceLine, matchName string) {
	if line.Quantity < 0 {
		line.Quantity = 0
	}
	if line.Price < 0 {
		line.Price = 0
	}

	id, score := e.matcher.Match(matchName)
	line.ProductID = id
	line.MatchScore = score
	if id != "" {
		if p, ok := e.refs.ProductByID(id); ok {
			line.Name = p.Name
		}
		// Caller-level auto-learn: a confident fuzzy hit becomes a learned
		// mapping so the next invoice resolves it exactly.
		if score > e.cfg.AutoLearnThreshold && score < 1.0 {
			if err := e.learned.Record(line.RawName, id, line.Name); err != nil {
				e.log.WithError(err).Debug("auto-learn write failed")
			}
		}
	}

	e.validateLine(line)
	line.Resolve()

	// Conversion only rescues a non-canonical unit; a valid line is never
	// converted away from it.
	if line.Unit != "" && line.ValidationError == errInvalidUnit {
		if entry, ok := e.converter.FindFor(line.ProductID, line.Unit); ok {
			line.OriginalQuantity = line.Quantity
			line.OriginalUnit = line.Unit
			line.Quantity = line.Quantity * entry.Factor
			line.Unit = entry.TargetUnit
			line.ConversionApplied = true
			e.validateLine(line)
			line.Resolve()
		}
	}
}

func (e *Enricher) validateLine(line *internal.InvoiceLine) {
	switch {
	case line.Unit == "" || !e.refs.IsCanonicalUnit(line.Unit):
		line.IsValid = false
		line.ValidationError = errInvalidUnit
	case line.Quantity <= 0:
		line.IsValid = false
		line.ValidationError = errInvalidQuantity
	case line.Price <= 0:
		line.IsValid = false
		line.ValidationError = errInvalidPrice
	default:
		line.IsValid = true
		line.ValidationError = ""
	}
}
