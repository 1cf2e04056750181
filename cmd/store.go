package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/graintrack/weighbridge-cli/internal/fetcher"
	"github.com/graintrack/weighbridge-cli/internal/ingest"
	"github.com/graintrack/weighbridge-cli/internal/model"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

// openStore creates the configured store backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newIngestor(st store.Store) (*ingest.Ingestor, error) {
	return ingest.New(st, ingest.Options{
		ReportingTimezone: cfg.Ingest.ReportingTimezone,
		Unit:              cfg.Ingest.Unit,
		Concurrency:       cfg.Ingest.Concurrency,
	})
}

// readSpreadsheet parses an XLSX or CSV export into a header and data rows.
func readSpreadsheet(path string) ([]string, [][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return fetcher.ReadXLSX(path, fetcher.SheetOptions{
			SheetName: cfg.Ingest.SheetName,
			HeaderRow: cfg.Ingest.HeaderRow,
		})
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open csv")
		}
		defer f.Close()
		return fetcher.ReadCSV(f, fetcher.CSVOptions{})
	default:
		return nil, nil, eris.Errorf("unsupported file type %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

// mapRows binds the header and converts all data rows to WeighRows.
func mapRows(header []string, rows [][]string, companyID, sourceExcel string) ([]model.WeighRow, error) {
	mapper, err := ingest.NewRowMapper(header, cfg.Ingest.Columns, companyID, sourceExcel)
	if err != nil {
		return nil, err
	}
	out := make([]model.WeighRow, 0, len(rows))
	for _, cells := range rows {
		out = append(out, mapper.Map(cells))
	}
	return out, nil
}
