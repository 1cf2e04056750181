// Package ingest normalizes raw weighbridge rows into transaction records
// and commits them with per-day duplicate suppression.
package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/graintrack/weighbridge-cli/internal/model"
)

// Store is the slice of the persistence layer the ingestor needs: registry
// reads for SELL enrichment and the atomic insert-or-no-op record write.
type Store interface {
	ResolveMix(ctx context.Context, companyID, productCode, productName, siteName string) (*model.MixEntry, error)
	InsertRecord(ctx context.Context, rec model.TransactionRecord) (bool, error)
}

// Options configures an Ingestor.
type Options struct {
	// ReportingTimezone is the fixed timezone used to derive dateKey.
	// Dedup is scoped to calendar days in this zone, not in UTC.
	ReportingTimezone string
	// Unit is the fixed display unit stamped on every record.
	Unit string
	// Concurrency bounds the batch worker pool.
	Concurrency int
}

// Ingestor turns parsed spreadsheet rows into stored transaction records.
type Ingestor struct {
	store       Store
	loc         *time.Location
	unit        string
	concurrency int
}

// New creates an Ingestor. The reporting timezone must be a valid IANA zone
// name; it defaults to Asia/Bangkok, the reporting zone of the weighbridge
// operators this pipeline was built for.
func New(st Store, opts Options) (*Ingestor, error) {
	tz := opts.ReportingTimezone
	if tz == "" {
		tz = "Asia/Bangkok"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: load reporting timezone %q", tz)
	}

	unit := opts.Unit
	if unit == "" {
		unit = "ton"
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Ingestor{store: st, loc: loc, unit: unit, concurrency: concurrency}, nil
}

// dateLayouts lists the timestamp formats seen in weighbridge exports, tried
// in order. Layouts without an explicit offset are interpreted in the
// reporting timezone.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// IngestRow normalizes and commits a single row.
//
// Malformed rows come back as a rejected result with a reason, not an error;
// only storage failures return a non-nil error. A duplicate is a first-class
// success: re-ingesting a previously seen file is a no-op by design.
func (ing *Ingestor) IngestRow(ctx context.Context, row model.WeighRow) (model.RowResult, error) {
	rec, reason := ing.normalize(ctx, row)
	if reason != "" {
		return model.RowResult{Status: model.RowStatusRejected, Reason: reason}, nil
	}

	inserted, err := ing.store.InsertRecord(ctx, *rec)
	if err != nil {
		return model.RowResult{}, eris.Wrap(err, "ingest: insert record")
	}
	if !inserted {
		return model.RowResult{Status: model.RowStatusDuplicate, Record: rec}, nil
	}
	return model.RowResult{Status: model.RowStatusInserted, Record: rec}, nil
}

// IngestBatch processes rows concurrently. Rows are independent: a rejected
// row never aborts the batch, and identical rows racing within the batch are
// arbitrated by the store's unique index, so at most one reports inserted.
// A storage error cancels the remaining work and is returned to the caller.
func (ing *Ingestor) IngestBatch(ctx context.Context, rows []model.WeighRow) (model.BatchResult, error) {
	var (
		mu     sync.Mutex
		result model.BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)

	for _, row := range rows {
		g.Go(func() error {
			res, err := ing.IngestRow(gctx, row)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			switch res.Status {
			case model.RowStatusInserted:
				result.Inserted++
			case model.RowStatusDuplicate:
				result.Duplicate++
			case model.RowStatusRejected:
				result.Rejected = append(result.Rejected, model.RejectedRow{Row: row, Reason: res.Reason})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.BatchResult{}, eris.Wrap(err, "ingest: batch")
	}
	return result, nil
}

// normalize validates a raw row and builds the record candidate. It returns
// a non-empty reason when the row must be rejected.
func (ing *Ingestor) normalize(ctx context.Context, row model.WeighRow) (*model.TransactionRecord, string) {
	companyID := strings.TrimSpace(row.CompanyID)
	if companyID == "" {
		return nil, "missing company"
	}

	weighType, ok := model.ParseWeighType(row.WeighType)
	if !ok {
		return nil, "invalid weigh type"
	}

	productName := strings.TrimSpace(row.ProductName)
	if productName == "" {
		return nil, "missing product name"
	}
	productCode := strings.TrimSpace(row.ProductCode)

	qty, ok := parseQuantity(row.QuantityTon)
	if !ok {
		return nil, "invalid quantity"
	}
	rawKg, ok := parseQuantity(row.RawWeightKg)
	if !ok {
		return nil, "invalid quantity"
	}
	if qty.IsZero() && rawKg.IsZero() {
		return nil, "invalid quantity"
	}

	date, ok := ing.parseDate(row.Date)
	if !ok {
		return nil, "invalid date"
	}
	dateKey := model.DateKey(date, ing.loc)

	siteName := ""
	siteCode := ""
	if weighType == model.WeighTypeSell {
		entry, err := ing.store.ResolveMix(ctx, companyID, productCode, productName, strings.TrimSpace(row.SiteName))
		switch {
		case err != nil:
			// Registry trouble degrades a SELL row to unmapped rather than
			// failing ingestion; site identity is a reporting concern.
			zap.L().Warn("ingest: mix resolution failed, continuing unmapped",
				zap.String("company", companyID),
				zap.String("product", productName),
				zap.Error(err),
			)
		case entry != nil:
			siteName = entry.SiteName
			siteCode = entry.SiteCode
		}
	}

	rowHash := model.Fingerprint(companyID, weighType, productName, productCode, qty, rawKg, dateKey, siteName)

	return &model.TransactionRecord{
		CompanyID:   companyID,
		WeighType:   weighType,
		ProductName: productName,
		ProductCode: productCode,
		Unit:        ing.unit,
		QuantityTon: qty,
		RawWeightKg: rawKg,
		Date:        date,
		DateKey:     dateKey,
		SiteName:    siteName,
		SiteCode:    siteCode,
		SourceExcel: strings.TrimSpace(row.SourceExcel),
		RowHash:     rowHash,
		HashVersion: model.FingerprintVersion,
	}, ""
}

// parseQuantity parses a spreadsheet quantity cell. Empty cells count as
// zero; thousands separators are tolerated; negative weights are invalid.
func parseQuantity(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (ing *Ingestor) parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, ing.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
