package learning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	mappings := filepath.Join(dir, "learned_mappings.csv")
	conversions := filepath.Join(dir, "unit_conversions.csv")
	return Open(mappings, conversions, nil), mappings, conversions
}

func TestRecordAndLookup(t *testing.T) {
	s, _, _ := openTestStore(t)

	require.NoError(t, s.Record("Tmt0", "P1", "Tomato"))

	m, ok := s.Lookup("Tmt0")
	require.True(t, ok)
	require.Equal(t, "P1", m.ProductID)
	require.Equal(t, "Tomato", m.CorrectedName)

	// key is case-insensitive
	_, ok = s.Lookup("tmt0")
	require.True(t, ok)

	_, ok = s.Lookup("unknown")
	require.False(t, ok)
}

func TestRecordIsIdempotentLastWriteWins(t *testing.T) {
	s, mappings, _ := openTestStore(t)

	require.NoError(t, s.Record("Tmt0", "P1", "Tomato"))
	require.NoError(t, s.Record("Tmt0", "P2", "Tomato Cherry"))

	m, ok := s.Lookup("Tmt0")
	require.True(t, ok)
	require.Equal(t, "P2", m.ProductID)
	require.Equal(t, 1, s.MappingCount())

	// the log keeps both rows; replay must land on the same state
	blob, err := os.ReadFile(mappings)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(strings.TrimSpace(string(blob)), "\n")))

	reopened := Open(mappings, filepath.Join(t.TempDir(), "none.csv"), nil)
	m, ok = reopened.Lookup("Tmt0")
	require.True(t, ok)
	require.Equal(t, "P2", m.ProductID)
	require.Equal(t, 1, reopened.MappingCount())
}

func TestHeaderWrittenOnce(t *testing.T) {
	s, mappings, _ := openTestStore(t)
	require.NoError(t, s.Record("a", "P1", ""))
	require.NoError(t, s.Record("b", "P2", ""))

	blob, err := os.ReadFile(mappings)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(blob), "original_name"))
}

func TestRecordConversionStoresReciprocal(t *testing.T) {
	s, _, _ := openTestStore(t)

	require.NoError(t, s.RecordConversion("", "kg", "g", 1000))

	entry, ok := s.LookupConversion("", "kg")
	require.True(t, ok)
	require.Equal(t, "g", entry.TargetUnit)
	require.Equal(t, 1000.0, entry.Factor)

	back, ok := s.LookupConversion("", "g")
	require.True(t, ok)
	require.Equal(t, "kg", back.TargetUnit)
	require.InDelta(t, 0.001, back.Factor, 1e-12)
}

func TestRecordConversionRejectsBadInput(t *testing.T) {
	s, _, _ := openTestStore(t)

	require.Error(t, s.RecordConversion("", "kg", "g", 0))
	require.Error(t, s.RecordConversion("", "kg", "g", -5))
	require.Error(t, s.RecordConversion("", "kg", "kg", 2))
	require.Error(t, s.RecordConversion("", "", "g", 2))
	require.Equal(t, 0, s.ConversionCount())
}

func TestConversionsSurviveReload(t *testing.T) {
	s, mappings, conversions := openTestStore(t)
	require.NoError(t, s.RecordConversion("P1", "box", "pcs", 12))

	reopened := Open(mappings, conversions, nil)
	entry, ok := reopened.LookupConversion("P1", "box")
	require.True(t, ok)
	require.Equal(t, "pcs", entry.TargetUnit)
	require.Equal(t, 12.0, entry.Factor)

	// reciprocal is re-derived on load, not read from the file
	back, ok := reopened.LookupConversion("P1", "pcs")
	require.True(t, ok)
	require.Equal(t, "box", back.TargetUnit)

	blob, err := os.ReadFile(conversions)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(blob), "box"))
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	mappings := filepath.Join(dir, "m.csv")
	require.NoError(t, os.WriteFile(mappings, []byte("original_name,product_id,corrected_name\nonlyname\nTmt0,P1,Tomato\n"), 0o644))

	s := Open(mappings, filepath.Join(dir, "c.csv"), nil)
	require.Equal(t, 1, s.MappingCount())
}
