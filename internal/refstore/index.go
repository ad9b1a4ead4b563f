package refstore

import (
	"notaflow/internal/util"
)

// Entry is one indexed reference record, product or supplier alike.
type Entry struct {
	ID   string
	Name string
}

// Index supports exact normalized-name lookup plus a token inverted index
// used to prefilter fuzzy candidates.
type Index struct {
	ByID           map[string]Entry
	ByName         map[string][]Entry
	TokenToIDs     map[string]map[string]struct{}
	NormalizedByID map[string]string
	order          []string
}

func BuildIndex(entries []Entry) *Index {
	idx := &Index{
		ByID:           map[string]Entry{},
		ByName:         map[string][]Entry{},
		TokenToIDs:     map[string]map[string]struct{}{},
		NormalizedByID: map[string]string{},
	}
	for _, e := range entries {
		idx.Add(e)
	}
	return idx
}

func (idx *Index) Add(e Entry) {
	if e.ID == "" {
		return
	}
	if _, exists := idx.ByID[e.ID]; !exists {
		idx.order = append(idx.order, e.ID)
	}
	idx.ByID[e.ID] = e

	norm := util.NormalizeName(e.Name)
	idx.NormalizedByID[e.ID] = norm
	idx.ByName[norm] = append(idx.ByName[norm], e)

	for _, token := range util.Tokenize(e.Name) {
		if _, ok := idx.TokenToIDs[token]; !ok {
			idx.TokenToIDs[token] = map[string]struct{}{}
		}
		idx.TokenToIDs[token][e.ID] = struct{}{}
	}
}

func (idx *Index) Len() int {
	return len(idx.ByID)
}

// IDs returns ids in insertion order, which follows file order for loaded
// reference data. Iteration stays reproducible across runs.
func (idx *Index) IDs() []string {
	return idx.order
}

func (idx *Index) Names() []string {
	out := make([]string, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.ByID[id].Name)
	}
	return out
}
