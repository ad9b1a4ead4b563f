package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"notaflow/internal/storage"
	"notaflow/internal/vision"
)

// End to end without the network: parsed document in, journal row and
// xlsx file out.
func TestSmokeEnrichJournalExport(t *testing.T) {
	e, learned, _ := testEnricher(t)
	dir := t.TempDir()

	if err := learned.RecordConversion("", "box", "pcs", 12); err != nil {
		t.Fatal(err)
	}

	doc := &vision.Document{
		SupplierName: "Fresh Foods LLC",
		BuyerName:    "Cafe Central",
		Date:         "2026-03-14",
		Items: []vision.Item{
			{Name: "Tomato", Quantity: 2, Unit: "kg", Price: 120},
			{Name: "Tomato Cherry", Quantity: 1, Unit: "box", Price: 300},
			{Name: "Mystery Thing", Quantity: 1, Unit: "kg", Price: 5},
		},
	}
	inv, err := e.Enrich(doc)
	if err != nil {
		t.Fatal(err)
	}
	if inv.MatchedCount != 2 || inv.UnmatchedCount != 1 {
		t.Fatalf("counts %d/%d", inv.MatchedCount, inv.UnmatchedCount)
	}

	db, err := storage.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	id, err := db.InsertInvoice(inv, "inbox/inv_001.jpg")
	if err != nil {
		t.Fatal(err)
	}

	rows, err := db.ExportRows(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows %d", len(rows))
	}

	out := filepath.Join(dir, "out", "invoice.xlsx")
	if err := ExportRowsToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)

	header, err := f.GetCellValue(sheet, "A1")
	if err != nil || header != "line_no" {
		t.Fatalf("header %q err %v", header, err)
	}
	name, _ := f.GetCellValue(sheet, "C2")
	if name != "Tomato" {
		t.Fatalf("cell C2 %q", name)
	}
	status, _ := f.GetCellValue(sheet, "J4")
	if status != "unmatched" {
		t.Fatalf("cell J4 %q", status)
	}
	origUnit, _ := f.GetCellValue(sheet, "N3")
	if origUnit != "box" {
		t.Fatalf("cell N3 %q", origUnit)
	}
}

func TestBuildExportRows(t *testing.T) {
	e, _, _ := testEnricher(t)

	inv, err := e.Enrich(&vision.Document{
		SupplierName: "Fresh Foods LLC",
		Items: []vision.Item{
			{Name: "Tomato", Quantity: 2, Unit: "kg", Price: 120},
			{Name: "Mystery Thing", Quantity: 1, Unit: "kg", Price: 5},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows := BuildExportRows(inv)
	if len(rows) != 2 {
		t.Fatalf("rows %d", len(rows))
	}
	if rows[0].LineNo != 1 || rows[1].LineNo != 2 {
		t.Fatalf("line numbers %d/%d", rows[0].LineNo, rows[1].LineNo)
	}
	if rows[0].Amount != 240 || rows[0].MatchStatus != "matched" {
		t.Fatalf("row 0 %+v", rows[0])
	}
	if rows[1].ProductID != nil || rows[1].MatchStatus != "unmatched" {
		t.Fatalf("row 1 %+v", rows[1])
	}
	if rows[0].OriginalQuantity != nil {
		t.Fatal("no conversion, no original quantity")
	}
}
