package internal

type MatchStatus string

const (
	StatusMatched   MatchStatus = "matched"
	StatusUnmatched MatchStatus = "unmatched"
)

// Product is a reference catalog entry. Immutable once loaded;
// identity is ID.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type Supplier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LearnedMapping is a human-confirmed raw-name -> product association.
// The raw name is matched case-insensitively.
type LearnedMapping struct {
	OriginalName  string `json:"original_name"`
	ProductID     string `json:"product_id"`
	CorrectedName string `json:"corrected_name,omitempty"`
}

// ConversionKey keys unit conversions per product. An empty ProductID is
// the product-agnostic default for the unit pair.
type ConversionKey struct {
	ProductID  string
	SourceUnit string
}

type ConversionEntry struct {
	TargetUnit string  `json:"target_unit"`
	Factor     float64 `json:"factor"`
}

type InvoiceLine struct {
	RawName           string      `json:"raw_name"`
	Name              string      `json:"name"`
	Quantity          float64     `json:"quantity"`
	Unit              string      `json:"unit"`
	Price             float64     `json:"price"`
	ProductID         string      `json:"product_id,omitempty"`
	MatchScore        float64     `json:"match_score"`
	Status            MatchStatus `json:"match_status"`
	IsValid           bool        `json:"is_valid"`
	ValidationError   string      `json:"validation_error,omitempty"`
	OriginalQuantity  float64     `json:"original_quantity,omitempty"`
	OriginalUnit      string      `json:"original_unit,omitempty"`
	ConversionApplied bool        `json:"conversion_applied"`
}

func (l InvoiceLine) Amount() float64 {
	return l.Quantity * l.Price
}

// Resolve derives the line status from the resolved product and validity.
// Status is never set independently of those two fields.
func (l *InvoiceLine) Resolve() {
	if l.ProductID != "" && l.IsValid {
		l.Status = StatusMatched
	} else {
		l.Status = StatusUnmatched
	}
}

type Invoice struct {
	SupplierName       string        `json:"supplier_name"`
	SupplierID         string        `json:"supplier_id,omitempty"`
	BuyerName          string        `json:"buyer_name,omitempty"`
	BuyerID            string        `json:"buyer_id,omitempty"`
	Date               string        `json:"date"`
	Lines              []InvoiceLine `json:"lines"`
	MatchedCount       int           `json:"matched_count"`
	UnmatchedCount     int           `json:"unmatched_count"`
	TotalMatchedAmount float64       `json:"total_matched_amount"`
	EnrichedAt         string        `json:"enriched_at,omitempty"`
}

// Recount rebuilds every line status and the invoice aggregates from
// scratch. Counts are never patched incrementally, so
// MatchedCount+UnmatchedCount == len(Lines) holds after any mutation.
func (inv *Invoice) Recount() {
	matched := 0
	total := 0.0
	for i := range inv.Lines {
		inv.Lines[i].Resolve()
		if inv.Lines[i].Status == StatusMatched {
			matched++
			total += inv.Lines[i].Amount()
		}
	}
	inv.MatchedCount = matched
	inv.UnmatchedCount = len(inv.Lines) - matched
	inv.TotalMatchedAmount = total
}

func (inv *Invoice) SupplierResolved() bool {
	return inv.SupplierID != ""
}

func (inv *Invoice) BuyerResolved() bool {
	return inv.BuyerName != ""
}

// CloneLines copies the line slice for undo snapshots. Lines hold no
// reference types, so a value copy is a deep copy.
func CloneLines(lines []InvoiceLine) []InvoiceLine {
	out := make([]InvoiceLine, len(lines))
	copy(out, lines)
	return out
}

// ExportRow is the flattened per-line shape written to xlsx and read back
// from the journal.
type ExportRow struct {
	LineNo            int
	RawName           string
	Name              string
	Quantity          float64
	Unit              string
	Price             float64
	Amount            float64
	ProductID         *string
	MatchScore        float64
	MatchStatus       string
	IsValid           bool
	ConversionApplied bool
	OriginalQuantity  *float64
	OriginalUnit      *string
}
