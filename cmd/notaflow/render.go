package main

import (
	"fmt"
	"strings"

	"notaflow/internal"
)

// formatInvoice renders an enriched invoice as plain text for the
// terminal, one line per item with its match and validation outcome.
func formatInvoice(inv *internal.Invoice) string {
	var b strings.Builder

	fmt.Fprintf(&b, "supplier: %s", inv.SupplierName)
	if inv.SupplierID != "" {
		fmt.Fprintf(&b, " (%s)", inv.SupplierID)
	}
	b.WriteByte('\n')
	if inv.BuyerName != "" {
		fmt.Fprintf(&b, "buyer:    %s\n", inv.BuyerName)
	}
	fmt.Fprintf(&b, "date:     %s\n\n", inv.Date)

	for i, line := range inv.Lines {
		marker := "x"
		if line.Status == internal.StatusMatched {
			marker = "+"
		}
		fmt.Fprintf(&b, "%2d [%s] %s\n", i+1, marker, line.Name)
		fmt.Fprintf(&b, "       %g %s x %.2f = %.2f", line.Quantity, line.Unit, line.Price, line.Amount())
		if line.ConversionApplied {
			fmt.Fprintf(&b, "  (was %g %s)", line.OriginalQuantity, line.OriginalUnit)
		}
		b.WriteByte('\n')
		if line.ProductID != "" {
			fmt.Fprintf(&b, "       product %s score %.2f\n", line.ProductID, line.MatchScore)
		}
		if line.ValidationError != "" {
			fmt.Fprintf(&b, "       !%s\n", line.ValidationError)
		}
	}

	fmt.Fprintf(&b, "\nmatched %d / %d, total %.2f\n",
		inv.MatchedCount, inv.MatchedCount+inv.UnmatchedCount, inv.TotalMatchedAmount)
	return b.String()
}
