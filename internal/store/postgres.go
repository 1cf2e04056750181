package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/graintrack/weighbridge-cli/internal/db"
	"github.com/graintrack/weighbridge-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot ingest path.
var preparedStatements = map[string]string{
	"insert_record": `INSERT INTO transaction_records
		(id, company_id, weigh_type, product_name, product_code, unit, quantity_ton, raw_weight_kg,
		 date, date_key, site_name, site_code, source_excel, row_hash, hash_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (company_id, date_key, row_hash) DO NOTHING`,
	"resolve_mix_by_code": `SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		FROM mix_entries WHERE company_id = $1 AND product_code = $2`,
	"resolve_mix_by_name": `SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		FROM mix_entries WHERE company_id = $1 AND product_name = $2 AND site_name = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk mix seeding).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS mix_entries (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id   TEXT NOT NULL,
	product_code TEXT NOT NULL DEFAULT '',
	product_name TEXT NOT NULL,
	site_name    TEXT NOT NULL,
	site_code    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_mix_company_code
	ON mix_entries(company_id, product_code) WHERE product_code <> '';
CREATE UNIQUE INDEX IF NOT EXISTS ux_mix_company_product_site
	ON mix_entries(company_id, product_name, site_name);

CREATE TABLE IF NOT EXISTS transaction_records (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id    TEXT NOT NULL,
	weigh_type    TEXT NOT NULL,
	product_name  TEXT NOT NULL,
	product_code  TEXT NOT NULL DEFAULT '',
	unit          TEXT NOT NULL DEFAULT 'ton',
	quantity_ton  TEXT NOT NULL,
	raw_weight_kg TEXT NOT NULL,
	date          TIMESTAMPTZ NOT NULL,
	date_key      TEXT NOT NULL,
	site_name     TEXT NOT NULL DEFAULT '',
	site_code     TEXT NOT NULL DEFAULT '',
	source_excel  TEXT NOT NULL DEFAULT '',
	row_hash      TEXT NOT NULL,
	hash_version  INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_records_dedup
	ON transaction_records(company_id, date_key, row_hash);
CREATE INDEX IF NOT EXISTS idx_records_company_day
	ON transaction_records(company_id, date_key);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertMix creates or updates a registry entry inside a transaction. The
// target is located by productCode first, then by (productName, siteName).
// Both uniqueness invariants stay enforced by the unique indexes, so a racing
// administrative edit surfaces as ErrMixConflict rather than a silent merge.
func (s *PostgresStore) UpsertMix(ctx context.Context, entry model.MixEntry) (*model.MixEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin upsert mix")
	}
	defer tx.Rollback(ctx)

	var byCode, byName *model.MixEntry
	if entry.ProductCode != "" {
		byCode, err = scanPgMixRow(tx.QueryRow(ctx,
			`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
			 FROM mix_entries WHERE company_id = $1 AND product_code = $2`,
			entry.CompanyID, entry.ProductCode,
		))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: upsert mix lookup by code")
		}
	}
	byName, err = scanPgMixRow(tx.QueryRow(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = $1 AND product_name = $2 AND site_name = $3`,
		entry.CompanyID, entry.ProductName, entry.SiteName,
	))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert mix lookup by name")
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
		_, err = tx.Exec(ctx,
			`INSERT INTO mix_entries (id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.ID, entry.CompanyID, entry.ProductCode, entry.ProductName,
			entry.SiteName, entry.SiteCode, entry.CreatedAt, entry.UpdatedAt,
		)
	} else {
		entry.ID = target.ID
		entry.CreatedAt = target.CreatedAt
		entry.UpdatedAt = now
		_, err = tx.Exec(ctx,
			`UPDATE mix_entries SET product_code = $1, product_name = $2, site_name = $3, site_code = $4, updated_at = $5
			 WHERE id = $6`,
			entry.ProductCode, entry.ProductName, entry.SiteName, entry.SiteCode,
			entry.UpdatedAt, entry.ID,
		)
	}
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, eris.Wrap(ErrMixConflict, "postgres: upsert mix")
		}
		return nil, eris.Wrap(err, "postgres: upsert mix write")
	}

	if err := tx.Commit(ctx); err != nil {
		if isPgUniqueViolation(err) {
			return nil, eris.Wrap(ErrMixConflict, "postgres: upsert mix")
		}
		return nil, eris.Wrap(err, "postgres: commit upsert mix")
	}
	return &entry, nil
}

func (s *PostgresStore) ResolveMix(ctx context.Context, companyID, productCode, productName, siteName string) (*model.MixEntry, error) {
	if productCode != "" {
		entry, err := scanPgMixRow(s.pool.QueryRow(ctx,
			`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
			 FROM mix_entries WHERE company_id = $1 AND product_code = $2`,
			companyID, productCode,
		))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: resolve mix by code")
		}
		if entry != nil {
			return entry, nil
		}
	}
	if productName == "" || siteName == "" {
		return nil, nil
	}
	entry, err := scanPgMixRow(s.pool.QueryRow(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = $1 AND product_name = $2 AND site_name = $3`,
		companyID, productName, siteName,
	))
	return entry, eris.Wrap(err, "postgres: resolve mix by name")
}

func (s *PostgresStore) ListMix(ctx context.Context, companyID string) ([]model.MixEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, product_code, product_name, site_name, site_code, created_at, updated_at
		 FROM mix_entries WHERE company_id = $1 ORDER BY product_name, site_name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mix")
	}
	defer rows.Close()

	var entries []model.MixEntry
	for rows.Next() {
		var e model.MixEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ProductCode, &e.ProductName,
			&e.SiteName, &e.SiteCode, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mix entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list mix iterate")
}

func (s *PostgresStore) DeleteMix(ctx context.Context, companyID, productCode, productName, siteName string) error {
	var tag pgconn.CommandTag
	var err error
	if productCode != "" {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM mix_entries WHERE company_id = $1 AND product_code = $2`,
			companyID, productCode,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM mix_entries WHERE company_id = $1 AND product_name = $2 AND site_name = $3`,
			companyID, productName, siteName,
		)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: delete mix")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("mix entry not found for company %s", companyID)
	}
	return nil
}

// InsertRecord persists a record unless its dedup key already exists.
// ON CONFLICT DO NOTHING lets the unique index arbitrate concurrent inserts:
// at most one statement reports an affected row.
func (s *PostgresStore) InsertRecord(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO transaction_records
		 (id, company_id, weigh_type, product_name, product_code, unit, quantity_ton, raw_weight_kg,
		  date, date_key, site_name, site_code, source_excel, row_hash, hash_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (company_id, date_key, row_hash) DO NOTHING`,
		rec.ID, rec.CompanyID, string(rec.WeighType), rec.ProductName, rec.ProductCode,
		rec.Unit, rec.QuantityTon.String(), rec.RawWeightKg.String(),
		rec.Date.UTC(), rec.DateKey, rec.SiteName, rec.SiteCode, rec.SourceExcel,
		rec.RowHash, rec.HashVersion, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert record")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.TransactionRecord, error) {
	query := `SELECT id, company_id, weigh_type, product_name, product_code, unit, quantity_ton, raw_weight_kg,
	                 date, date_key, site_name, site_code, source_excel, row_hash, hash_version, created_at
	          FROM transaction_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CompanyID != "" {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	if filter.DateKey != "" {
		query += fmt.Sprintf(` AND date_key = $%d`, argIdx)
		args = append(args, filter.DateKey)
		argIdx++
	}
	if filter.WeighType != "" {
		query += fmt.Sprintf(` AND weigh_type = $%d`, argIdx)
		args = append(args, string(filter.WeighType))
		argIdx++
	}
	query += ` ORDER BY date_key DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		var rec model.TransactionRecord
		var weighType, qty, rawKg string
		if err := rows.Scan(&rec.ID, &rec.CompanyID, &weighType, &rec.ProductName, &rec.ProductCode,
			&rec.Unit, &qty, &rawKg, &rec.Date, &rec.DateKey, &rec.SiteName, &rec.SiteCode,
			&rec.SourceExcel, &rec.RowHash, &rec.HashVersion, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.WeighType = model.WeighType(weighType)
		if rec.QuantityTon, err = decimal.NewFromString(qty); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse quantity %q", qty)
		}
		if rec.RawWeightKg, err = decimal.NewFromString(rawKg); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse raw weight %q", rawKg)
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CountByDay(ctx context.Context, companyID string, limit int) ([]DayCount, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, date_key, COUNT(*) FROM transaction_records
		 WHERE company_id = $1 GROUP BY company_id, date_key
		 ORDER BY date_key DESC LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by day")
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.CompanyID, &dc.DateKey, &dc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan day count")
		}
		counts = append(counts, dc)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by day iterate")
}

// helpers

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanPgMixRow(row pgx.Row) (*model.MixEntry, error) {
	var e model.MixEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.ProductCode, &e.ProductName,
		&e.SiteName, &e.SiteCode, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
