package matching

import (
	"sort"

	"notaflow/internal/config"
	"notaflow/internal/learning"
	"notaflow/internal/refstore"
	"notaflow/internal/util"
)

// candidate cap when the token prefilter finds nothing and the whole
// table has to be scored.
const fallbackScanLimit = 1500

// Matcher resolves raw, possibly misspelled names against the reference
// store. The learning store is consulted first; a learned mapping is
// treated as certain. Scores are in [0,1].
type Matcher struct {
	cfg     config.Config
	refs    *refstore.Store
	learned *learning.Store
}

func NewMatcher(cfg config.Config, refs *refstore.Store, learned *learning.Store) *Matcher {
	return &Matcher{cfg: cfg, refs: refs, learned: learned}
}

// Match resolves a raw item name with the configured threshold.
func (m *Matcher) Match(rawName string) (string, float64) {
	return m.MatchWithThreshold(rawName, m.cfg.MatchThreshold)
}

// MatchWithThreshold returns the best product id and its score, or an
// empty id with the best score seen when nothing clears the threshold.
func (m *Matcher) MatchWithThreshold(rawName string, threshold float64) (string, float64) {
	norm := util.NormalizeName(rawName)
	if norm == "" {
		return "", 0
	}

	if mapping, ok := m.learned.Lookup(rawName); ok {
		return mapping.ProductID, 1.0
	}

	return matchAgainst(m.refs.ProductIndex(), norm, threshold)
}

// MatchSupplier resolves a supplier name against the supplier table.
func (m *Matcher) MatchSupplier(rawName string) (string, float64) {
	norm := util.NormalizeName(rawName)
	if norm == "" {
		return "", 0
	}
	return matchAgainst(m.refs.SupplierIndex(), norm, m.cfg.SupplierThreshold)
}

// MatchBuyer resolves a buyer name against the buyer table. Buyers stay
// free text upstream; a resolved id is a bonus, not a requirement.
func (m *Matcher) MatchBuyer(rawName string) (string, float64) {
	norm := util.NormalizeName(rawName)
	if norm == "" {
		return "", 0
	}
	return matchAgainst(m.refs.BuyerIndex(), norm, m.cfg.BuyerThreshold)
}

func matchAgainst(idx *refstore.Index, normalized string, threshold float64) (string, float64) {
	if exact := idx.ByName[normalized]; len(exact) > 0 {
		return bestEntry(exact).ID, 1.0
	}

	bestID, bestScore := rankCandidates(idx, normalized)
	if bestID == "" || bestScore < threshold {
		return "", bestScore
	}
	return bestID, bestScore
}

// bestEntry breaks exact-name collisions by shortest name then id, the
// same deterministic order used for fuzzy ties.
func bestEntry(entries []refstore.Entry) refstore.Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		if len(e.Name) < len(best.Name) || (len(e.Name) == len(best.Name) && e.ID < best.ID) {
			best = e
		}
	}
	return best
}

func rankCandidates(idx *refstore.Index, query string) (string, float64) {
	queryTokens := util.Tokenize(query)
	ids := map[string]struct{}{}
	for _, token := range queryTokens {
		for id := range idx.TokenToIDs[token] {
			ids[id] = struct{}{}
		}
	}

	if len(ids) == 0 {
		for i, id := range idx.IDs() {
			if i >= fallbackScanLimit {
				break
			}
			ids[id] = struct{}{}
		}
	}

	type scored struct {
		id    string
		name  string
		score float64
	}
	out := make([]scored, 0, len(ids))
	for id := range ids {
		candidate := idx.NormalizedByID[id]
		out = append(out, scored{id: id, name: idx.ByID[id].Name, score: util.Similarity(query, candidate)})
	}
	if len(out) == 0 {
		return "", 0
	}

	// Equal top scores prefer the shortest name; iteration order over the
	// id set must never decide a match.
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if len(out[i].name) != len(out[j].name) {
			return len(out[i].name) < len(out[j].name)
		}
		return out[i].id < out[j].id
	})
	return out[0].id, out[0].score
}
