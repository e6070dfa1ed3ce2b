package model

// Item is one tracked coin in the global catalog.
//
// Price and MarketCap are pointers because both columns are nullable: the
// provider sometimes reports null for small coins, and users may leave the
// fields blank. nil means "unknown", which is different from 0.
type Item struct {
	ID        int64    `json:"id"        db:"id"`
	Name      string   `json:"name"      db:"name"`
	Price     *float64 `json:"price"     db:"price"`
	MarketCap *float64 `json:"marketCap" db:"market_cap"`
}

// NewItem is an item that has not been stored yet. ReplaceAll takes a slice
// of these; the store assigns the IDs.
type NewItem struct {
	Name      string
	Price     *float64
	MarketCap *float64
}
