package learning

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"notaflow/internal"
	"notaflow/internal/util"
)

var mappingHeader = []string{"original_name", "product_id", "corrected_name"}

var conversionHeader = []string{"product_id", "source_unit", "target_unit", "factor"}

// Store persists user-confirmed corrections: raw-name -> product mappings
// and unit conversion factors. The files are append-only logs; the
// in-memory overlay applies last-write-wins per key, so replaying a file
// after restart reconstructs the same state. Writes are serialized with a
// mutex; correction traffic is human-paced.
type Store struct {
	mu              sync.Mutex
	mappingsPath    string
	conversionsPath string
	log             logrus.FieldLogger

	mappings    map[string]internal.LearnedMapping
	conversions map[internal.ConversionKey]internal.ConversionEntry
}

func Open(mappingsPath, conversionsPath string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		mappingsPath:    mappingsPath,
		conversionsPath: conversionsPath,
		log:             log,
		mappings:        map[string]internal.LearnedMapping{},
		conversions:     map[internal.ConversionKey]internal.ConversionEntry{},
	}
	s.loadMappings()
	s.loadConversions()
	return s
}

// Lookup resolves a raw name by case-insensitive exact key. No fuzziness
// at this layer.
func (s *Store) Lookup(rawName string) (internal.LearnedMapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[mappingKey(rawName)]
	return m, ok
}

// Record appends the mapping to the log and updates the overlay. Safe to
// call repeatedly for the same key; the newest write shadows older rows.
// On a write failure the overlay is still updated so the correction holds
// for the rest of the session, and the error is returned.
func (s *Store) Record(originalName, productID, correctedName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mappings[mappingKey(originalName)] = internal.LearnedMapping{
		OriginalName:  originalName,
		ProductID:     productID,
		CorrectedName: correctedName,
	}

	err := s.appendRow(s.mappingsPath, mappingHeader, []string{originalName, productID, correctedName})
	if err != nil {
		s.log.WithError(err).WithField("name", originalName).Error("learned mapping not persisted, kept in memory only")
		return fmt.Errorf("persist mapping: %w", err)
	}
	s.log.WithFields(logrus.Fields{"name": originalName, "product_id": productID}).Info("learned mapping recorded")
	return nil
}

func (s *Store) LookupConversion(productID, sourceUnit string) (internal.ConversionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.conversions[conversionKey(productID, sourceUnit)]
	return entry, ok
}

// RecordConversion stores the factor and its reciprocal so the table is
// queryable in both directions from a single human-provided data point.
// Only the forward row goes to the log; loading re-derives the reciprocal.
func (s *Store) RecordConversion(productID, sourceUnit, targetUnit string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("conversion factor must be positive, got %v", factor)
	}
	source := util.NormalizeUnit(sourceUnit)
	target := util.NormalizeUnit(targetUnit)
	if source == "" || target == "" || source == target {
		return fmt.Errorf("invalid conversion pair %q -> %q", sourceUnit, targetUnit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyConversion(productID, source, target, factor)

	err := s.appendRow(s.conversionsPath, conversionHeader, []string{
		productID, source, target, strconv.FormatFloat(factor, 'f', -1, 64),
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"source": source, "target": target}).
			Error("unit conversion not persisted, kept in memory only")
		return fmt.Errorf("persist conversion: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"product_id": productID, "source": source, "target": target, "factor": factor,
	}).Info("unit conversion recorded")
	return nil
}

func (s *Store) MappingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

func (s *Store) ConversionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversions)
}

func (s *Store) applyConversion(productID, source, target string, factor float64) {
	s.conversions[conversionKey(productID, source)] = internal.ConversionEntry{TargetUnit: target, Factor: factor}
	s.conversions[conversionKey(productID, target)] = internal.ConversionEntry{TargetUnit: source, Factor: 1 / factor}
}

func (s *Store) loadMappings() {
	rows := s.readRows(s.mappingsPath)
	for _, row := range rows {
		if len(row) < 2 || row[0] == mappingHeader[0] {
			continue
		}
		corrected := ""
		if len(row) > 2 {
			corrected = row[2]
		}
		s.mappings[mappingKey(row[0])] = internal.LearnedMapping{
			OriginalName:  row[0],
			ProductID:     row[1],
			CorrectedName: corrected,
		}
	}
	if len(s.mappings) > 0 {
		s.log.WithField("count", len(s.mappings)).Info("learned mappings loaded")
	}
}

func (s *Store) loadConversions() {
	rows := s.readRows(s.conversionsPath)
	for _, row := range rows {
		if len(row) < 4 || row[0] == conversionHeader[0] {
			continue
		}
		factor, err := strconv.ParseFloat(row[3], 64)
		if err != nil || factor <= 0 {
			continue
		}
		s.applyConversion(row[0], util.NormalizeUnit(row[1]), util.NormalizeUnit(row[2]), factor)
	}
	if len(s.conversions) > 0 {
		s.log.WithField("count", len(s.conversions)).Info("unit conversions loaded")
	}
}

func (s *Store) readRows(path string) [][]string {
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", path).Warn("learning file unreadable, starting empty")
		}
		return nil
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	var out [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warn("skipping malformed learning row")
			continue
		}
		out = append(out, row)
	}
	return out
}

func (s *Store) appendRow(path string, header, row []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func mappingKey(rawName string) string {
	return util.NormalizeName(rawName)
}

func conversionKey(productID, sourceUnit string) internal.ConversionKey {
	return internal.ConversionKey{ProductID: productID, SourceUnit: util.NormalizeUnit(sourceUnit)}
}
