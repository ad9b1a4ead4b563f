package vision

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"notaflow/internal/util"
)

// ExtractJSONObject returns the first balanced {...} substring of raw,
// skipping braces inside string literals. Models wrap their JSON in prose
// or code fences often enough that this is the default path, not a hack.
func ExtractJSONObject(raw string) ([]byte, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(raw[start : i+1]), true
			}
		}
	}
	return nil, false
}

// ParseDocument turns raw model output into a Document. It never returns
// an error: unusable output degrades to an empty skeleton (unknown
// supplier, today's date, no items) and ok=false, so the caller can tell
// the user to retry without the pipeline treating it as fatal.
func ParseDocument(raw string, log logrus.FieldLogger) (*Document, bool) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	blob, found := ExtractJSONObject(raw)
	if !found {
		log.WithField("raw_len", len(raw)).Warn("no JSON object in model output, returning empty invoice skeleton")
		return emptyDocument(), false
	}

	if err := validateDocument(blob); err != nil {
		cleaned, sanitizeErr := sanitizeDocumentJSON(blob)
		if sanitizeErr != nil || validateDocument(cleaned) != nil {
			log.WithError(err).Warn("model output failed schema validation, returning empty invoice skeleton")
			return emptyDocument(), false
		}
		log.Warn("model output accepted after sanitize pass")
		blob = cleaned
	}

	var loose struct {
		SupplierName string           `json:"supplier_name"`
		BuyerName    string           `json:"buyer_name"`
		Date         string           `json:"date"`
		TotalAmount  any              `json:"total_amount"`
		Items        []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(blob, &loose); err != nil {
		log.WithError(err).Warn("model output undecodable after validation, returning empty invoice skeleton")
		return emptyDocument(), false
	}

	doc := &Document{
		SupplierName: strings.TrimSpace(loose.SupplierName),
		BuyerName:    strings.TrimSpace(loose.BuyerName),
		Date:         strings.TrimSpace(loose.Date),
		Items:        make([]Item, 0, len(loose.Items)),
	}
	if total, ok := util.ParseFloat(loose.TotalAmount); ok {
		doc.TotalAmount = total
	}
	for _, raw := range loose.Items {
		item := Item{}
		if name, ok := raw["name"].(string); ok {
			item.Name = strings.TrimSpace(name)
		}
		if unit, ok := raw["unit"].(string); ok {
			item.Unit = strings.TrimSpace(unit)
		}
		if qty, ok := util.ParseFloat(raw["quantity"]); ok {
			item.Quantity = qty
		} else if qty, ok := util.ParseFloat(raw["qty"]); ok {
			item.Quantity = qty
		}
		if price, ok := util.ParseFloat(raw["price"]); ok {
			item.Price = price
		}
		if item.Name == "" {
			continue
		}
		doc.Items = append(doc.Items, item)
	}

	applyDefaults(doc)
	return doc, true
}

// sanitizeDocumentJSON drops keys outside the schema vocabulary and
// renames common synonyms, then re-encodes. One lenient pass only.
func sanitizeDocumentJSON(blob []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, err
	}

	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
		}
	}
	rename("supplier", "supplier_name")
	rename("vendor_name", "supplier_name")
	rename("buyer", "buyer_name")
	rename("total", "total_amount")
	rename("lines", "items")

	allowed := map[string]struct{}{
		"supplier_name": {}, "buyer_name": {}, "date": {}, "items": {}, "total_amount": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
		}
	}
	if _, ok := m["items"]; !ok {
		m["items"] = []any{}
	}

	if items, ok := m["items"].([]any); ok {
		for _, it := range items {
			entry, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := entry["qty"]; ok {
				if _, exists := entry["quantity"]; !exists {
					entry["quantity"] = v
				}
				delete(entry, "qty")
			}
		}
	}

	return json.Marshal(m)
}

func emptyDocument() *Document {
	doc := &Document{Items: []Item{}}
	applyDefaults(doc)
	return doc
}

func applyDefaults(doc *Document) {
	if doc.SupplierName == "" {
		doc.SupplierName = UnknownSupplier
	}
	if doc.Date == "" {
		doc.Date = time.Now().Format("2006-01-02")
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
}
