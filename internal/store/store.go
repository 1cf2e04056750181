package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/graintrack/weighbridge-cli/internal/model"
)

// ErrMixConflict is returned when a mix upsert would violate one of the two
// registry uniqueness invariants: the (company, productCode) or
// (company, productName, siteName) identity already belongs to a different
// entry.
var ErrMixConflict = eris.New("mix entry conflicts with an existing mapping")

// RecordFilter specifies criteria for listing transaction records.
type RecordFilter struct {
	CompanyID string          `json:"company_id,omitempty"`
	DateKey   string          `json:"date_key,omitempty"`
	WeighType model.WeighType `json:"weigh_type,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// DayCount is a per-company, per-day record count for reporting.
type DayCount struct {
	CompanyID string `json:"company_id"`
	DateKey   string `json:"date_key"`
	Count     int    `json:"count"`
}

// Store defines the persistence interface for the ingestion pipeline.
//
// InsertRecord must be atomic with respect to the (companyId, dateKey,
// rowHash) unique constraint: two inserts racing on the same key resolve to
// exactly one stored row, and exactly one caller observes inserted=true.
// ResolveMix returns (nil, nil) on a registry miss; an unresolvable SELL row
// is a valid outcome, not an error.
type Store interface {
	// Mix registry
	UpsertMix(ctx context.Context, entry model.MixEntry) (*model.MixEntry, error)
	ResolveMix(ctx context.Context, companyID, productCode, productName, siteName string) (*model.MixEntry, error)
	ListMix(ctx context.Context, companyID string) ([]model.MixEntry, error)
	DeleteMix(ctx context.Context, companyID, productCode, productName, siteName string) error

	// Transaction records
	InsertRecord(ctx context.Context, rec model.TransactionRecord) (inserted bool, err error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.TransactionRecord, error)
	CountByDay(ctx context.Context, companyID string, limit int) ([]DayCount, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
