package domain

import "github.com/shopspring/decimal"

// The API contract serializes decimal-typed fields as JSON numbers, not
// strings. Every package that emits JSON imports domain, so setting the
// package-level switch here covers the whole tree.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
