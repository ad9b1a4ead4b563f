package refstore

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"notaflow/internal"
	"notaflow/internal/util"
)

// Units every deployment understands even without a units file. Mirrors
// the standard abbreviations the extraction prompt asks the model for.
var defaultUnits = []string{"kg", "g", "l", "ml", "pcs"}

// Store loads and caches product, supplier, buyer and unit reference
// tables from flat CSV files. A missing file degrades to an empty table
// with a warning; downstream then treats everything as unmatched.
type Store struct {
	productsPath  string
	suppliersPath string
	buyersPath    string
	unitsPath     string
	log           logrus.FieldLogger

	loaded    bool
	products  map[string]internal.Product
	suppliers map[string]internal.Supplier
	buyers    map[string]internal.Supplier
	units     map[string]struct{}

	productIndex  *Index
	supplierIndex *Index
	buyerIndex    *Index
}

func New(productsPath, suppliersPath, buyersPath, unitsPath string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		productsPath:  productsPath,
		suppliersPath: suppliersPath,
		buyersPath:    buyersPath,
		unitsPath:     unitsPath,
		log:           log,
	}
}

// Load reads all reference files. Idempotent; call Reload to force a
// re-read after an external refresh.
func (s *Store) Load() {
	if s.loaded {
		return
	}
	s.Reload()
}

func (s *Store) Reload() {
	s.products = map[string]internal.Product{}
	s.suppliers = map[string]internal.Supplier{}
	s.buyers = map[string]internal.Supplier{}
	s.productIndex = BuildIndex(nil)
	s.supplierIndex = BuildIndex(nil)
	s.buyerIndex = BuildIndex(nil)

	for _, row := range s.readCSV(s.productsPath, "products") {
		p := internal.Product{ID: row["id"], Name: row["name"], Category: row["category"]}
		if p.ID == "" || p.Name == "" {
			continue
		}
		s.products[p.ID] = p
		s.productIndex.Add(Entry{ID: p.ID, Name: p.Name})
	}
	for _, row := range s.readCSV(s.suppliersPath, "suppliers") {
		sup := internal.Supplier{ID: row["id"], Name: row["name"]}
		if sup.ID == "" || sup.Name == "" {
			continue
		}
		s.suppliers[sup.ID] = sup
		s.supplierIndex.Add(Entry{ID: sup.ID, Name: sup.Name})
	}
	for _, row := range s.readCSV(s.buyersPath, "buyers") {
		b := internal.Supplier{ID: row["id"], Name: row["name"]}
		if b.ID == "" || b.Name == "" {
			continue
		}
		s.buyers[b.ID] = b
		s.buyerIndex.Add(Entry{ID: b.ID, Name: b.Name})
	}

	s.units = s.readUnits()
	s.loaded = true
	s.log.WithFields(logrus.Fields{
		"products":  len(s.products),
		"suppliers": len(s.suppliers),
		"buyers":    len(s.buyers),
		"units":     len(s.units),
	}).Info("reference data loaded")
}

func (s *Store) readCSV(path, kind string) []map[string]string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warnf("%s reference file unavailable, continuing with empty table", kind)
		return nil
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warnf("%s reference file unreadable", kind)
		return nil
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var out []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warnf("skipping malformed %s row", kind)
			continue
		}
		row := map[string]string{}
		for i, value := range record {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(value)
			}
		}
		out = append(out, row)
	}
	return out
}

func (s *Store) readUnits() map[string]struct{} {
	units := map[string]struct{}{}
	blob, err := os.ReadFile(s.unitsPath)
	if err != nil {
		s.log.WithField("path", s.unitsPath).Warn("units file unavailable, falling back to built-in unit list")
		for _, u := range defaultUnits {
			units[u] = struct{}{}
		}
		return units
	}
	for _, line := range strings.Split(string(blob), "\n") {
		u := util.NormalizeUnit(line)
		if u != "" && u != "unit" {
			units[u] = struct{}{}
		}
	}
	if len(units) == 0 {
		for _, u := range defaultUnits {
			units[u] = struct{}{}
		}
	}
	return units
}

func (s *Store) ProductByID(id string) (internal.Product, bool) {
	s.Load()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) SupplierByID(id string) (internal.Supplier, bool) {
	s.Load()
	sup, ok := s.suppliers[id]
	return sup, ok
}

func (s *Store) Suppliers() []internal.Supplier {
	s.Load()
	out := make([]internal.Supplier, 0, len(s.suppliers))
	for _, id := range s.supplierIndex.IDs() {
		out = append(out, s.suppliers[id])
	}
	return out
}

func (s *Store) ProductNames() []string {
	s.Load()
	return s.productIndex.Names()
}

func (s *Store) IsCanonicalUnit(unit string) bool {
	s.Load()
	_, ok := s.units[util.NormalizeUnit(unit)]
	return ok
}

func (s *Store) ProductIndex() *Index {
	s.Load()
	return s.productIndex
}

func (s *Store) SupplierIndex() *Index {
	s.Load()
	return s.supplierIndex
}

func (s *Store) BuyerIndex() *Index {
	s.Load()
	return s.buyerIndex
}

// RegisterProduct adds a product confirmed during a correction session to
// the in-memory table and index. The flat file itself is owned by an
// external process and is not rewritten here.
func (s *Store) RegisterProduct(p internal.Product) {
	s.Load()
	s.products[p.ID] = p
	s.productIndex.Add(Entry{ID: p.ID, Name: p.Name})
	s.log.WithFields(logrus.Fields{"id": p.ID, "name": p.Name}).Info("registered new product")
}
