package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WeighType classifies a weighbridge transaction.
type WeighType string

const (
	WeighTypeBuy  WeighType = "BUY"
	WeighTypeSell WeighType = "SELL"
)

// ParseWeighType normalizes a raw weigh type cell value. Returns false for
// anything other than BUY or SELL.
func ParseWeighType(s string) (WeighType, bool) {
	switch WeighType(strings.ToUpper(strings.TrimSpace(s))) {
	case WeighTypeBuy:
		return WeighTypeBuy, true
	case WeighTypeSell:
		return WeighTypeSell, true
	}
	return "", false
}

// WeighRow is a raw spreadsheet row before normalization. Quantity and date
// fields stay as strings so that a malformed cell rejects the row during
// ingest instead of aborting the whole file at parse time.
type WeighRow struct {
	CompanyID   string `json:"company_id"`
	WeighType   string `json:"weigh_type"`
	ProductName string `json:"product_name"`
	ProductCode string `json:"product_code,omitempty"`
	QuantityTon string `json:"quantity_ton"`
	RawWeightKg string `json:"raw_weight_kg"`
	Date        string `json:"date"`
	SiteName    string `json:"site_name,omitempty"`
	SiteCode    string `json:"site_code,omitempty"`
	SourceExcel string `json:"source_excel,omitempty"`
}

// TransactionRecord is a normalized, persisted weighing transaction.
// Records are immutable after insert and are never deleted automatically.
type TransactionRecord struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	WeighType   WeighType       `json:"weigh_type"`
	ProductName string          `json:"product_name"`
	ProductCode string          `json:"product_code,omitempty"`
	Unit        string          `json:"unit"`
	QuantityTon decimal.Decimal `json:"quantity_ton"`
	RawWeightKg decimal.Decimal `json:"raw_weight_kg"`
	Date        time.Time       `json:"date"`
	DateKey     string          `json:"date_key"`
	SiteName    string          `json:"site_name,omitempty"`
	SiteCode    string          `json:"site_code,omitempty"`
	SourceExcel string          `json:"source_excel,omitempty"`
	RowHash     string          `json:"row_hash"`
	HashVersion int             `json:"hash_version"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RowStatus is the per-row outcome of an ingest call.
type RowStatus string

const (
	RowStatusInserted  RowStatus = "inserted"
	RowStatusDuplicate RowStatus = "duplicate"
	RowStatusRejected  RowStatus = "rejected"
)

// RowResult reports what happened to a single ingested row. Reason is set
// only for rejected rows.
type RowResult struct {
	Status RowStatus          `json:"status"`
	Reason string             `json:"reason,omitempty"`
	Record *TransactionRecord `json:"record,omitempty"`
}

// RejectedRow pairs a rejected input row with the rejection reason.
type RejectedRow struct {
	Row    WeighRow `json:"row"`
	Reason string   `json:"reason"`
}

// BatchResult aggregates the outcomes of a batch ingest.
type BatchResult struct {
	Inserted  int           `json:"inserted"`
	Duplicate int           `json:"duplicate"`
	Rejected  []RejectedRow `json:"rejected,omitempty"`
}

// DateKey projects a timestamp into the reporting timezone and formats it as
// the calendar-day dedup scope. Two timestamps on the same reporting-zone day
// always yield the same key.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
