package models

import "time"

// StockItem is master data for orderable goods. Requisition activity never
// mutates CurrentStock; there is no fulfillment linkage.
type StockItem struct {
	ID           int64     `db:"id" json:"id"`
	StockCode    string    `db:"stock_code" json:"stock_code"`
	Description  string    `db:"description" json:"description"`
	Category     string    `db:"category" json:"category"`
	UOM          string    `db:"uom" json:"uom"`
	CurrentStock float64   `db:"current_stock" json:"current_stock"`
	UnitPrice    float64   `db:"unit_price" json:"unit_price"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StockItemFilter narrows list queries on master data.
type StockItemFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}
