package domain

// SaleStatus is the canonical vocabulary every platform's native status
// enum normalizes into (spec §7). This implementation preserves sold_out
// as distinct from off_sale rather than collapsing it — see DESIGN.md's
// "Open Question decisions" for the rationale.
type SaleStatus string

const (
	OnSale  SaleStatus = "on_sale"
	SoldOut SaleStatus = "sold_out"
	OffSale SaleStatus = "off_sale"
)

// ProductRecord is the normalized output of any scanner strategy
// (spec §3 "Product record (normalized)").
type ProductRecord struct {
	ProductName       string         `json:"product_name"`
	ThumbnailURL      string         `json:"thumbnail_url"`
	OriginalPrice     int64          `json:"original_price" validate:"gte=0"`
	DiscountedPrice   int64          `json:"discounted_price" validate:"gte=0"`
	SaleStatus        SaleStatus     `json:"sale_status" validate:"oneof=on_sale sold_out off_sale"`
	Meta              map[string]any `json:"meta,omitempty"`
	IsNotFound         bool          `json:"is_not_found"`
}

// ScanResult is the scanner's return value: either a normalized record or
// a NOT_FOUND outcome, both success branches (spec §4.D "NOT_FOUND
// detection").
type ScanResult struct {
	Record      *ProductRecord
	IsNotFound  bool
	NativeID    string
}
