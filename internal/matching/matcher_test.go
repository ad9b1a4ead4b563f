package matching

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"notaflow/internal/config"
	"notaflow/internal/learning"
	"notaflow/internal/refstore"
)

func testMatcher(t *testing.T) (*Matcher, *learning.Store) {
	t.Helper()
	dir := t.TempDir()

	products := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(products, []byte(
		"id,name\n"+
			"P1,Tomato\n"+
			"P2,Tomato Cherry\n"+
			"P3,Milk\n"+
			"P4,Milk Chocolate\n"+
			"P5,Cherry Juice\n"+
			"P7,Salt\n"+
			"P6,Salt\n"), 0o644))
	suppliers := filepath.Join(dir, "suppliers.csv")
	require.NoError(t, os.WriteFile(suppliers, []byte("id,name\nS1,Fresh Foods LLC\nS2,Dairy Plant\n"), 0o644))
	buyers := filepath.Join(dir, "buyers.csv")
	require.NoError(t, os.WriteFile(buyers, []byte("id,name\nB1,Cafe Central\n"), 0o644))

	refs := refstore.New(products, suppliers, buyers, "", nil)
	refs.Load()
	learned := learning.Open(filepath.Join(dir, "m.csv"), filepath.Join(dir, "c.csv"), nil)

	cfg := config.Config{
		MatchThreshold:    0.60,
		SupplierThreshold: 0.75,
		BuyerThreshold:    0.75,
	}
	return NewMatcher(cfg, refs, learned), learned
}

func TestExactMatchScoresOne(t *testing.T) {
	m, _ := testMatcher(t)

	id, score := m.Match("Tomato")
	require.Equal(t, "P1", id)
	require.Equal(t, 1.0, score)

	// normalization applies before the exact lookup
	id, score = m.Match(`  "TOMATO"  `)
	require.Equal(t, "P1", id)
	require.Equal(t, 1.0, score)
}

func TestFuzzyMatchAboveThreshold(t *testing.T) {
	m, _ := testMatcher(t)

	id, score := m.Match("Tomatoe")
	require.Equal(t, "P1", id)
	require.Greater(t, score, 0.6)
	require.Less(t, score, 1.0)
}

func TestNoMatchBelowThreshold(t *testing.T) {
	m, _ := testMatcher(t)

	id, score := m.Match("Carburetor")
	require.Empty(t, id)
	require.Less(t, score, 0.6)
}

func TestEmptyNameDoesNotMatch(t *testing.T) {
	m, _ := testMatcher(t)
	id, score := m.Match("   ")
	require.Empty(t, id)
	require.Equal(t, 0.0, score)
}

func TestLearnedMappingWinsOverFuzzy(t *testing.T) {
	m, learned := testMatcher(t)

	// "Tmt0" is garbage for the scorer but known to the store
	id, _ := m.Match("Tmt0")
	require.Empty(t, id)

	require.NoError(t, learned.Record("Tmt0", "P5", ""))

	id, score := m.Match("Tmt0")
	require.Equal(t, "P5", id)
	require.Equal(t, 1.0, score)
}

func TestDeterministicAcrossRepeats(t *testing.T) {
	m, _ := testMatcher(t)

	firstID, firstScore := m.Match("Cherry")
	for i := 0; i < 50; i++ {
		id, score := m.Match("Cherry")
		require.Equal(t, firstID, id)
		require.Equal(t, firstScore, score)
	}
}

func TestTieBreakPrefersShorterName(t *testing.T) {
	m, _ := testMatcher(t)

	// both Tomato and Tomato Cherry contain the token; the shorter
	// candidate must win when scores allow
	id, _ := m.Match("Tomato")
	require.Equal(t, "P1", id)

	id, _ = m.Match("Milk")
	require.Equal(t, "P3", id)
}

func TestExactCollisionBreaksOnID(t *testing.T) {
	m, _ := testMatcher(t)

	// two catalog rows named Salt; equal names fall through to the id
	id, score := m.Match("Salt")
	require.Equal(t, "P6", id)
	require.Equal(t, 1.0, score)
}

func TestMatchSupplier(t *testing.T) {
	m, _ := testMatcher(t)

	id, score := m.MatchSupplier("Fresh Foods LLC")
	require.Equal(t, "S1", id)
	require.Equal(t, 1.0, score)

	id, _ = m.MatchSupplier("Totally Unknown Trading")
	require.Empty(t, id)
}

func TestMatchBuyer(t *testing.T) {
	m, _ := testMatcher(t)

	id, _ := m.MatchBuyer("Cafe Central")
	require.Equal(t, "B1", id)

	id, _ = m.MatchBuyer("")
	require.Empty(t, id)
}

func TestMatchWithThresholdStricter(t *testing.T) {
	m, _ := testMatcher(t)

	looseID, score := m.MatchWithThreshold("Tomatoe", 0.6)
	require.Equal(t, "P1", looseID)

	strictID, _ := m.MatchWithThreshold("Tomatoe", score+0.01)
	require.Empty(t, strictID)
}
