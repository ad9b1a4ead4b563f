package units

import (
	"notaflow/internal"
	"notaflow/internal/learning"
	"notaflow/internal/util"
)

// Converter answers unit conversion queries against the learning store.
// Conversions are keyed per product; the empty product id holds the
// product-agnostic default for a unit pair, so a single recorded factor
// serves every product until a more specific one is taught.
type Converter struct {
	store *learning.Store
}

func NewConverter(store *learning.Store) *Converter {
	return &Converter{store: store}
}

// Convert returns the quantity expressed in targetUnit. Identical units
// pass through unchanged. Without a stored factor it reports false; the
// caller must not assume 1:1.
func (c *Converter) Convert(productID string, qty float64, sourceUnit, targetUnit string) (float64, bool) {
	source := util.NormalizeUnit(sourceUnit)
	target := util.NormalizeUnit(targetUnit)
	if source == target {
		return qty, true
	}

	entry, ok := c.find(productID, source)
	if !ok || entry.TargetUnit != target {
		return 0, false
	}
	return qty * entry.Factor, true
}

// FindFor reports whether any conversion is stored for this line's unit,
// preferring a product-specific entry over the default.
func (c *Converter) FindFor(productID, sourceUnit string) (internal.ConversionEntry, bool) {
	return c.find(productID, util.NormalizeUnit(sourceUnit))
}

// Record validates and persists a conversion factor. The reciprocal
// becomes queryable immediately.
func (c *Converter) Record(productID, sourceUnit, targetUnit string, factor float64) error {
	return c.store.RecordConversion(productID, sourceUnit, targetUnit, factor)
}

func (c *Converter) find(productID, source string) (internal.ConversionEntry, bool) {
	if productID != "" {
		if entry, ok := c.store.LookupConversion(productID, source); ok {
			return entry, true
		}
	}
	return c.store.LookupConversion("", source)
}
