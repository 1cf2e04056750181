package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintrack/weighbridge-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func mixColumns() []string {
	return []string{"id", "company_id", "product_code", "product_name", "site_name", "site_code", "created_at", "updated_at"}
}

func TestPostgresStore_InsertRecord_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO transaction_records`).
		WithArgs(pgxmock.AnyArg(), "co-1", "BUY", "Corn", "", "ton", "12.5", "12500",
			pgxmock.AnyArg(), "2024-03-02", "", "", "", "hash-a", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.InsertRecord(context.Background(), model.TransactionRecord{
		CompanyID:   "co-1",
		WeighType:   model.WeighTypeBuy,
		ProductName: "Corn",
		Unit:        "ton",
		QuantityTon: decimal.RequireFromString("12.5"),
		RawWeightKg: decimal.RequireFromString("12500"),
		Date:        time.Date(2024, 3, 2, 9, 15, 0, 0, time.UTC),
		DateKey:     "2024-03-02",
		RowHash:     "hash-a",
		HashVersion: 1,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRecord_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// ON CONFLICT DO NOTHING: zero rows affected means the key already exists.
	mock.ExpectExec(`INSERT INTO transaction_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.InsertRecord(context.Background(), model.TransactionRecord{
		CompanyID:   "co-1",
		WeighType:   model.WeighTypeBuy,
		ProductName: "Corn",
		QuantityTon: decimal.RequireFromString("12.5"),
		RawWeightKg: decimal.RequireFromString("12500"),
		DateKey:     "2024-03-02",
		RowHash:     "hash-a",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveMix_ByCode(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-01").
		WillReturnRows(pgxmock.NewRows(mixColumns()).
			AddRow("id-1", "co-1", "C-01", "Corn", "Silo A", "SA", now, now))

	entry, err := s.ResolveMix(context.Background(), "co-1", "C-01", "Corn", "Silo A")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Silo A", entry.SiteName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveMix_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-99").
		WillReturnRows(pgxmock.NewRows(mixColumns()))
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_name = \$2 AND site_name = \$3`).
		WithArgs("co-1", "Corn", "Silo A").
		WillReturnRows(pgxmock.NewRows(mixColumns()))

	entry, err := s.ResolveMix(context.Background(), "co-1", "C-99", "Corn", "Silo A")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMix_Create(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-01").
		WillReturnRows(pgxmock.NewRows(mixColumns()))
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_name = \$2 AND site_name = \$3`).
		WithArgs("co-1", "Corn", "Silo A").
		WillReturnRows(pgxmock.NewRows(mixColumns()))
	mock.ExpectExec(`INSERT INTO mix_entries`).
		WithArgs(pgxmock.AnyArg(), "co-1", "C-01", "Corn", "Silo A", "SA", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	entry, err := s.UpsertMix(context.Background(), model.MixEntry{
		CompanyID: "co-1", ProductCode: "C-01", ProductName: "Corn", SiteName: "Silo A", SiteCode: "SA",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMix_ConflictTwoIdentities(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-01").
		WillReturnRows(pgxmock.NewRows(mixColumns()).
			AddRow("id-1", "co-1", "C-01", "Corn", "Silo A", "", now, now))
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_name = \$2 AND site_name = \$3`).
		WithArgs("co-1", "Wheat", "Silo B").
		WillReturnRows(pgxmock.NewRows(mixColumns()).
			AddRow("id-2", "co-1", "", "Wheat", "Silo B", "", now, now))
	mock.ExpectRollback()

	_, err := s.UpsertMix(context.Background(), model.MixEntry{
		CompanyID: "co-1", ProductCode: "C-01", ProductName: "Wheat", SiteName: "Silo B",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMixConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMix_RacedUniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-01").
		WillReturnRows(pgxmock.NewRows(mixColumns()))
	mock.ExpectQuery(`FROM mix_entries WHERE company_id = \$1 AND product_name = \$2 AND site_name = \$3`).
		WithArgs("co-1", "Corn", "Silo A").
		WillReturnRows(pgxmock.NewRows(mixColumns()))
	mock.ExpectExec(`INSERT INTO mix_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.UpsertMix(context.Background(), model.MixEntry{
		CompanyID: "co-1", ProductCode: "C-01", ProductName: "Corn", SiteName: "Silo A",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMixConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMix_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM mix_entries WHERE company_id = \$1 AND product_code = \$2`).
		WithArgs("co-1", "C-99").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteMix(context.Background(), "co-1", "C-99", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByDay(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT company_id, date_key, COUNT\(\*\) FROM transaction_records`).
		WithArgs("co-1", 30).
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "date_key", "count"}).
			AddRow("co-1", "2024-03-03", 1).
			AddRow("co-1", "2024-03-02", 2))

	counts, err := s.CountByDay(context.Background(), "co-1", 0)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 2, counts[1].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
