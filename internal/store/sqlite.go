package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/graintrack/weighbridge-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS mix_entries (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	product_code TEXT NOT NULL DEFAULT '',
	product_name TEXT NOT NULL,
	site_name    TEXT NOT NULL,
	site_code    TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_mix_company_code
	ON mix_entries(company_id, product_code) WHERE product_code <> '';
CREATE UNIQUE INDEX IF NOT EXISTS ux_mix_company_product_site
	ON mix_entries(company_id, product_name, site_name);

CREATE TABLE IF NOT EXISTS transaction_records (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL,
	weigh_type    TEXT NOT NULL,
	product_name  TEXT NOT NULL,
	product_code  TEXT NOT NULL DEFAULT '',
	unit          TEXT NOT NULL DEFAULT 'ton',
	quantity_ton  TEXT NOT NULL,
	raw_weight_kg TEXT NOT NULL,
	date          DATETIME NOT NULL,
	date_key      TEXT NOT NULL,
	site_name     TEXT NOT NULL DEFAULT '',
	site_code     TEXT NOT NULL DEFAULT '',
	source_excel  TEXT NOT NULL DEFAULT '',
	row_hash      TEXT NOT NULL,
	hash_version  INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_records_dedup
	ON transaction_records(company_id, date_key, row_hash);
CREATE INDEX IF NOT EXISTS idx_records_company_day
	ON transaction_records(company_id, date_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertMix creates or updates a registry entry. The target entry is located
// by productCode first, then by (productName, siteName). If both lookups hit
// different rows the write would merge two identities and is a conflict; any
// unique-index violation raced in by a concurrent writer maps to
// ErrMixConflict as well.
func (s *SQLiteStore) UpsertMix(ctx context.Context, entry model.MixEntry) (*model.MixEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert mix")
	}
	defer tx.Rollback()

	var byCode, byName *model.MixEntry
	if entry.ProductCode != "" {
		byCode, err = scanMixRow(tx.QueryRowContext(ctx,
			`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
			 FROM mix_entries WHERE company_id = ? AND product_code = ?`,
			entry.CompanyID, entry.ProductCode,
		))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert mix lookup by code")
		}
	}
	byName, err = scanMixRow(tx.QueryRowContext(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = ? AND product_name = ? AND site_name = ?`,
		entry.CompanyID, entry.ProductName, entry.SiteName,
	))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert mix lookup by name")
	}

	if byCode != nil && byName != nil && byCode.ID != byName.ID {
		return nil, eris.Wrapf(ErrMixConflict,
			"product code %s and product %s at %s belong to different entries",
			entry.ProductCode, entry.ProductName, entry.SiteName)
	}

	target := byCode
	if target == nil {
		target = byName
	}

	now := time.Now().UTC()
	if target == nil {
		entry.ID = uuid.New().String()
		entry.CreatedAt = now
		entry.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mix_entries (id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.CompanyID, entry.ProductCode, entry.ProductName,
			entry.SiteName, entry.SiteCode, entry.CreatedAt, entry.UpdatedAt,
		)
	} else {
		entry.ID = target.ID
		entry.CreatedAt = target.CreatedAt
		entry.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE mix_entries SET product_code = ?, product_name = ?, site_name = ?, site_code = ?, updated_at = ?
			 WHERE id = ?`,
			entry.ProductCode, entry.ProductName, entry.SiteName, entry.SiteCode,
			entry.UpdatedAt, entry.ID,
		)
	}
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, eris.Wrap(ErrMixConflict, "sqlite: upsert mix")
		}
		return nil, eris.Wrap(err, "sqlite: upsert mix write")
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, eris.Wrap(ErrMixConflict, "sqlite: upsert mix")
		}
		return nil, eris.Wrap(err, "sqlite: commit upsert mix")
	}
	return &entry, nil
}

// ResolveMix looks up an entry by (companyId, productCode) when the code is
// non-empty, falling back to (companyId, productName, siteName). A miss
// returns (nil, nil).
func (s *SQLiteStore) ResolveMix(ctx context.Context, companyID, productCode, productName, siteName string) (*model.MixEntry, error) {
	if productCode != "" {
		entry, err := scanMixRow(s.db.QueryRowContext(ctx,
			`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
			 FROM mix_entries WHERE company_id = ? AND product_code = ?`,
			companyID, productCode,
		))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: resolve mix by code")
		}
		if entry != nil {
			return entry, nil
		}
	}
	if productName == "" || siteName == "" {
		return nil, nil
	}
	entry, err := scanMixRow(s.db.QueryRowContext(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = ? AND product_name = ? AND site_name = ?`,
		companyID, productName, siteName,
	))
	return entry, eris.Wrap(err, "sqlite: resolve mix by name")
}

func (s *SQLiteStore) ListMix(ctx context.Context, companyID string) ([]model.MixEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = ? ORDER BY product_name, site_name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mix")
	}
	defer rows.Close()

	var entries []model.MixEntry
	for rows.Next() {
		var e model.MixEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ProductCode, &e.ProductName,
			&e.SiteName, &e.SiteCode, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mix entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list mix iterate")
}

func (s *SQLiteStore) DeleteMix(ctx context.Context, companyID, productCode, productName, siteName string) error {
	var res sql.Result
	var err error
	if productCode != "" {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM mix_entries WHERE company_id = ? AND product_code = ?`,
			companyID, productCode,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM mix_entries WHERE company_id = ? AND product_name = ? AND site_name = ?`,
			companyID, productName, siteName,
		)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: delete mix")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: delete mix rows affected")
	}
	if n == 0 {
		return eris.Errorf("mix entry not found for company %s", companyID)
	}
	return nil
}

// InsertRecord persists a record unless its dedup key already exists.
// INSERT OR IGNORE makes the check-and-insert a single atomic statement, so
// concurrent ingests of the same row cannot both report inserted.
func (s *SQLiteStore) InsertRecord(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transaction_records
		 (id, company_id, weigh_type, product_name, product_code, unit, quantity_ton, raw_weight_kg,
		  date, date_key, site_name, site_code, source_excel, row_hash, hash_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CompanyID, string(rec.WeighType), rec.ProductName, rec.ProductCode,
		rec.Unit, rec.QuantityTon.String(), rec.RawWeightKg.String(),
		rec.Date.UTC(), rec.DateKey, rec.SiteName, rec.SiteCode, rec.SourceExcel,
		rec.RowHash, rec.HashVersion, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert record rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.TransactionRecord, error) {
	query := `SELECT id, company_id, weigh_type, product_name, product_code, unit, quantity_ton, raw_weight_kg,
	                 date, date_key, site_name, site_code, source_excel, row_hash, hash_version, created_at
	          FROM transaction_records WHERE 1=1`
	var args []any

	if filter.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if filter.DateKey != "" {
		query += ` AND date_key = ?`
		args = append(args, filter.DateKey)
	}
	if filter.WeighType != "" {
		query += ` AND weigh_type = ?`
		args = append(args, string(filter.WeighType))
	}
	query += ` ORDER BY date_key DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) CountByDay(ctx context.Context, companyID string, limit int) ([]DayCount, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, date_key, COUNT(*) FROM transaction_records
		 WHERE company_id = ? GROUP BY company_id, date_key
		 ORDER BY date_key DESC LIMIT ?`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by day")
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.CompanyID, &dc.DateKey, &dc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan day count")
		}
		counts = append(counts, dc)
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by day iterate")
}

// helpers

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMixRow(row scannable) (*model.MixEntry, error) {
	var e model.MixEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.ProductCode, &e.ProductName,
		&e.SiteName, &e.SiteCode, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRecord(row scannable) (*model.TransactionRecord, error) {
	var rec model.TransactionRecord
	var weighType, qty, rawKg string
	err := row.Scan(&rec.ID, &rec.CompanyID, &weighType, &rec.ProductName, &rec.ProductCode,
		&rec.Unit, &qty, &rawKg, &rec.Date, &rec.DateKey, &rec.SiteName, &rec.SiteCode,
		&rec.SourceExcel, &rec.RowHash, &rec.HashVersion, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}
	rec.WeighType = model.WeighType(weighType)
	if rec.QuantityTon, err = decimal.NewFromString(qty); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse quantity %q", qty)
	}
	if rec.RawWeightKg, err = decimal.NewFromString(rawKg); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse raw weight %q", rawKg)
	}
	return &rec, nil
}
