package vision

// Document is the structured result of one vision extraction pass. Fields
// the model omitted are filled with safe defaults before the document
// leaves this package.
type Document struct {
	SupplierName string  `json:"supplier_name"`
	BuyerName    string  `json:"buyer_name,omitempty"`
	Date         string  `json:"date"`
	Items        []Item  `json:"items"`
	TotalAmount  float64 `json:"total_amount,omitempty"`
}

type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price"`
}

const UnknownSupplier = "Unknown Supplier"
