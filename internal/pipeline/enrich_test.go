package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"notaflow/internal"
	"notaflow/internal/config"
	"notaflow/internal/learning"
	"notaflow/internal/matching"
	"notaflow/internal/refstore"
	"notaflow/internal/units"
	"notaflow/internal/vision"
)

func testEnricher(t *testing.T) (*Enricher, *learning.Store, *refstore.Store) {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	products := write("products.csv", "id,name\nP1,Tomato\nP2,Tomato Cherry\nP3,Milk\n")
	suppliers := write("suppliers.csv", "id,name\nS1,Fresh Foods LLC\n")
	buyers := write("buyers.csv", "id,name\nB1,Cafe Central\n")
	unitsFile := write("units.csv", "kg\ng\nl\nml\npcs\n")

	refs := refstore.New(products, suppliers, buyers, unitsFile, nil)
	refs.Load()
	learned := learning.Open(filepath.Join(dir, "m.csv"), filepath.Join(dir, "c.csv"), nil)

	cfg := config.Config{
		MatchThreshold:     0.60,
		AutoLearnThreshold: 0.90,
		SupplierThreshold:  0.75,
		BuyerThreshold:     0.75,
		ExistsThreshold:    0.90,
	}
	matcher := matching.NewMatcher(cfg, refs, learned)
	converter := units.NewConverter(learned)
	return NewEnricher(cfg, refs, matcher, converter, learned, nil), learned, refs
}

func testDocument() *vision.Document {
	return &vision.Document{
		SupplierName: "Fresh Foods LLC",
		BuyerName:    "Cafe Central",
		Date:         "2026-03-14",
		Items: []vision.Item{
			{Name: "Tomato", Quantity: 2, Unit: "kg", Price: 120},
			{Name: "Milk", Quantity: 3, Unit: "l", Price: 89},
		},
	}
}

func TestEnrichFullyMatchedInvoice(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(testDocument())
	if err != nil {
		t.Fatal(err)
	}

	if inv.SupplierID != "S1" {
		t.Fatalf("supplier id %q", inv.SupplierID)
	}
	if inv.BuyerID != "B1" {
		t.Fatalf("buyer id %q", inv.BuyerID)
	}
	if inv.MatchedCount != 2 || inv.UnmatchedCount != 0 {
		t.Fatalf("counts %d/%d", inv.MatchedCount, inv.UnmatchedCount)
	}
	if inv.TotalMatchedAmount != 2*120+3*89 {
		t.Fatalf("total %v", inv.TotalMatchedAmount)
	}
	if inv.Lines[0].ProductID != "P1" || inv.Lines[0].Status != internal.StatusMatched {
		t.Fatalf("line 0 %+v", inv.Lines[0])
	}
	if inv.EnrichedAt == "" {
		t.Fatal("enrichment timestamp missing")
	}
}

func TestEnrichPreservesLineOrder(t *testing.T) {
	e, _, _ := testEnricher(t)

	doc := &vision.Document{
		SupplierName: "Unknown",
		Items: []vision.Item{
			{Name: "Zebra Meat", Quantity: 1, Unit: "kg", Price: 10},
			{Name: "Tomato", Quantity: 1, Unit: "kg", Price: 10},
			{Name: "Another Mystery", Quantity: 1, Unit: "kg", Price: 10},
		},
	}
	inv, err := e.Enrich(doc)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Lines[0].RawName != "Zebra Meat" || inv.Lines[1].RawName != "Tomato" || inv.Lines[2].RawName != "Another Mystery" {
		t.Fatalf("order broken: %+v", inv.Lines)
	}
	if inv.Lines[1].Status != internal.StatusMatched {
		t.Fatal("known item must match regardless of neighbors")
	}
	if inv.MatchedCount+inv.UnmatchedCount != len(inv.Lines) {
		t.Fatalf("counts %d+%d != %d", inv.MatchedCount, inv.UnmatchedCount, len(inv.Lines))
	}
}

func TestEnrichNilDocumentFails(t *testing.T) {
	e, _, _ := testEnricher(t)

	var enrichErr *EnrichmentError
	_, err := e.Enrich(nil)
	if !errors.As(err, &enrichErr) {
		t.Fatalf("err %v", err)
	}

	_, err = e.Enrich(&vision.Document{SupplierName: "ACME"})
	if !errors.As(err, &enrichErr) {
		t.Fatalf("err %v", err)
	}
}

func TestEnrichEmptyItemsIsNotAnError(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(&vision.Document{SupplierName: "ACME", Items: []vision.Item{}})
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Lines) != 0 || inv.MatchedCount != 0 {
		t.Fatalf("invoice %+v", inv)
	}
}

func TestInvalidUnitBlocksMatchedStatus(t *testing.T) {
	e, _, _ := testEnricher(t)

	line := e.EnrichLine(vision.Item{Name: "Tomato", Quantity: 2, Unit: "xyz", Price: 120})
	if line.ProductID != "P1" {
		t.Fatalf("product id %q", line.ProductID)
	}
	if line.IsValid || line.ValidationError != "invalid_unit" {
		t.Fatalf("validation %+v", line)
	}
	if line.Status != internal.StatusUnmatched {
		t.Fatal("an invalid line must stay unmatched")
	}
}

func TestValidationOrderAndClamping(t *testing.T) {
	e, _, _ := testEnricher(t)

	line := e.EnrichLine(vision.Item{Name: "Tomato", Quantity: -5, Unit: "kg", Price: 120})
	if line.Quantity != 0 {
		t.Fatalf("quantity %v", line.Quantity)
	}
	if line.ValidationError != "invalid_quantity" {
		t.Fatalf("validation %q", line.ValidationError)
	}

	line = e.EnrichLine(vision.Item{Name: "Tomato", Quantity: 2, Unit: "kg", Price: 0})
	if line.ValidationError != "invalid_price" {
		t.Fatalf("validation %q", line.ValidationError)
	}
}

func TestUnknownNameStaysUnmatched(t *testing.T) {
	e, _, _ := testEnricher(t)

	line := e.EnrichLine(vision.Item{Name: "Carburetor", Quantity: 1, Unit: "pcs", Price: 10})
	if line.ProductID != "" || line.Status != internal.StatusUnmatched {
		t.Fatalf("line %+v", line)
	}
	if line.Name != "Carburetor" {
		t.Fatal("unmatched lines keep the raw name")
	}
}

func TestMatchedLineAdoptsCanonicalName(t *testing.T) {
	e, _, _ := testEnricher(t)

	line := e.EnrichLine(vision.Item{Name: "  TOMATO  ", Quantity: 1, Unit: "kg", Price: 10})
	if line.Name != "Tomato" {
		t.Fatalf("name %q", line.Name)
	}
	if line.RawName != "  TOMATO  " {
		t.Fatal("raw name must survive canonicalization")
	}
}

func TestConfidentFuzzyMatchIsAutoLearned(t *testing.T) {
	e, learned, _ := testEnricher(t)

	line := e.EnrichLine(vision.Item{Name: "Tomatto", Quantity: 1, Unit: "kg", Price: 10})
	if line.ProductID != "P1" {
		t.Fatalf("line %+v", line)
	}
	if line.MatchScore <= 0.9 || line.MatchScore >= 1.0 {
		t.Fatalf("score %v outside the auto-learn band", line.MatchScore)
	}

	m, ok := learned.Lookup("Tomatto")
	if !ok || m.ProductID != "P1" {
		t.Fatalf("mapping %+v ok=%v", m, ok)
	}

	// the next occurrence resolves through the learned store
	again := e.EnrichLine(vision.Item{Name: "Tomatto", Quantity: 1, Unit: "kg", Price: 10})
	if again.MatchScore != 1.0 {
		t.Fatalf("score %v", again.MatchScore)
	}
}

func TestConversionAppliedDuringEnrichment(t *testing.T) {
	e, learned, _ := testEnricher(t)

	if err := learned.RecordConversion("", "box", "pcs", 12); err != nil {
		t.Fatal(err)
	}

	line := e.EnrichLine(vision.Item{Name: "Tomato", Quantity: 2, Unit: "box", Price: 50})
	if !line.ConversionApplied {
		t.Fatalf("line %+v", line)
	}
	if line.Quantity != 24 || line.Unit != "pcs" {
		t.Fatalf("converted %v %s", line.Quantity, line.Unit)
	}
	if line.OriginalQuantity != 2 || line.OriginalUnit != "box" {
		t.Fatalf("originals %v %s", line.OriginalQuantity, line.OriginalUnit)
	}
	if !line.IsValid || line.Status != internal.StatusMatched {
		t.Fatalf("line should be valid after conversion: %+v", line)
	}
}

func TestCanonicalUnitIsNeverConverted(t *testing.T) {
	e, learned, _ := testEnricher(t)

	// the reciprocal pcs -> box exists, but pcs is already canonical
	if err := learned.RecordConversion("", "box", "pcs", 12); err != nil {
		t.Fatal(err)
	}

	line := e.EnrichLine(vision.Item{Name: "Tomato", Quantity: 10, Unit: "pcs", Price: 5})
	if line.ConversionApplied {
		t.Fatalf("line %+v", line)
	}
	if line.Quantity != 10 || line.Unit != "pcs" || !line.IsValid {
		t.Fatalf("line %+v", line)
	}
}

func TestReEnrichLineAfterNameCorrection(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(&vision.Document{
		SupplierName: "Fresh Foods LLC",
		Items:        []vision.Item{{Name: "Qwerty", Quantity: 1, Unit: "kg", Price: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv.UnmatchedCount != 1 {
		t.Fatalf("counts %d/%d", inv.MatchedCount, inv.UnmatchedCount)
	}

	inv.Lines[0].Name = "Tomato"
	e.ReEnrichLine(inv, 0)

	if inv.Lines[0].ProductID != "P1" || inv.Lines[0].Status != internal.StatusMatched {
		t.Fatalf("line %+v", inv.Lines[0])
	}
	if inv.Lines[0].RawName != "Qwerty" {
		t.Fatal("raw name must survive correction")
	}
	if inv.MatchedCount != 1 || inv.UnmatchedCount != 0 {
		t.Fatalf("counts %d/%d", inv.MatchedCount, inv.UnmatchedCount)
	}
}

func TestReEnrichLineRevertsConversion(t *testing.T) {
	e, learned, _ := testEnricher(t)

	if err := learned.RecordConversion("", "box", "pcs", 12); err != nil {
		t.Fatal(err)
	}
	inv, err := e.Enrich(&vision.Document{
		SupplierName: "Fresh Foods LLC",
		Items:        []vision.Item{{Name: "Tomato", Quantity: 2, Unit: "box", Price: 50}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv.Lines[0].Quantity != 24 {
		t.Fatalf("quantity %v", inv.Lines[0].Quantity)
	}

	// re-running starts from the original figures, not the converted ones
	e.ReEnrichLine(inv, 0)
	if inv.Lines[0].Quantity != 24 || inv.Lines[0].OriginalQuantity != 2 {
		t.Fatalf("line %+v", inv.Lines[0])
	}
}

func TestApplyProduct(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(&vision.Document{
		SupplierName: "Fresh Foods LLC",
		Items:        []vision.Item{{Name: "Qwerty", Quantity: 1, Unit: "kg", Price: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}

	e.ApplyProduct(inv, 0, "P3")
	line := inv.Lines[0]
	if line.ProductID != "P3" || line.MatchScore != 1.0 || line.Name != "Milk" {
		t.Fatalf("line %+v", line)
	}
	if line.Status != internal.StatusMatched {
		t.Fatalf("status %s", line.Status)
	}
	if inv.MatchedCount != 1 {
		t.Fatalf("counts %d/%d", inv.MatchedCount, inv.UnmatchedCount)
	}
}

func TestApplyProductWithBadUnitStaysUnmatched(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(&vision.Document{
		SupplierName: "Fresh Foods LLC",
		Items:        []vision.Item{{Name: "Qwerty", Quantity: 1, Unit: "bucket", Price: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}

	e.ApplyProduct(inv, 0, "P3")
	line := inv.Lines[0]
	if line.ProductID != "P3" {
		t.Fatalf("line %+v", line)
	}
	if line.IsValid || line.Status != internal.StatusUnmatched {
		t.Fatal("a confirmed product with a bad unit must stay unmatched")
	}
}
