package refstore

import (
	"os"
	"path/filepath"
	"testing"

	"notaflow/internal"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	products := filepath.Join(dir, "products.csv")
	suppliers := filepath.Join(dir, "suppliers.csv")
	buyers := filepath.Join(dir, "buyers.csv")
	units := filepath.Join(dir, "units.csv")

	writeFile(t, products, "id,name,category\nP1,Tomato,vegetables\nP2,Tomato Cherry,vegetables\nP3,Milk,dairy\n")
	writeFile(t, suppliers, "id,name\nS1,Fresh Foods LLC\nS2,Dairy Plant\n")
	writeFile(t, buyers, "id,name\nB1,Cafe Central\n")
	writeFile(t, units, "kg\ng\nl\nml\npcs\n")

	s := New(products, suppliers, buyers, units, nil)
	s.Load()
	return s
}

func TestLoadReferenceTables(t *testing.T) {
	s := testStore(t)

	p, ok := s.ProductByID("P1")
	if !ok || p.Name != "Tomato" {
		t.Fatalf("got %+v ok=%v", p, ok)
	}
	if s.ProductIndex().Len() != 3 {
		t.Fatalf("product index len %d", s.ProductIndex().Len())
	}
	sup, ok := s.SupplierByID("S2")
	if !ok || sup.Name != "Dairy Plant" {
		t.Fatalf("got %+v ok=%v", sup, ok)
	}
	if got := len(s.Suppliers()); got != 2 {
		t.Fatalf("suppliers %d", got)
	}
	if s.BuyerIndex().Len() != 1 {
		t.Fatal("buyer index not loaded")
	}
}

func TestMissingFileDegradesToEmptyTable(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "absent.csv"), filepath.Join(dir, "absent2.csv"), "", filepath.Join(dir, "absent3.csv"), nil)
	s.Load()

	if s.ProductIndex().Len() != 0 {
		t.Fatal("expected empty product table")
	}
	// built-in unit list still applies
	if !s.IsCanonicalUnit("kg") {
		t.Fatal("default units not loaded")
	}
}

func TestIsCanonicalUnitNormalizes(t *testing.T) {
	s := testStore(t)
	if !s.IsCanonicalUnit("KG.") {
		t.Fatal("kg with dot and case should be canonical")
	}
	if s.IsCanonicalUnit("box") {
		t.Fatal("box is not in the units file")
	}
}

func TestSkipsRowsWithoutIDOrName(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.csv")
	writeFile(t, products, "id,name\nP1,Tomato\n,NoID\nP9,\n")
	s := New(products, "", "", "", nil)
	s.Load()
	if s.ProductIndex().Len() != 1 {
		t.Fatalf("index len %d", s.ProductIndex().Len())
	}
}

func TestRegisterProduct(t *testing.T) {
	s := testStore(t)
	s.RegisterProduct(internal.Product{ID: "NEW1", Name: "Basil"})

	p, ok := s.ProductByID("NEW1")
	if !ok || p.Name != "Basil" {
		t.Fatalf("got %+v ok=%v", p, ok)
	}
	if _, ok := s.ProductIndex().ByID["NEW1"]; !ok {
		t.Fatal("registered product missing from index")
	}
}

func TestIndexInsertionOrder(t *testing.T) {
	idx := BuildIndex([]Entry{{ID: "b", Name: "Beta"}, {ID: "a", Name: "Alpha"}})
	ids := idx.IDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("ids %v", ids)
	}
}
