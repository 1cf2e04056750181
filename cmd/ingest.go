package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/graintrack/weighbridge-cli/internal/model"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

var (
	ingestFilePath string
	ingestCompany  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a weighbridge spreadsheet export",
	Long:  "Parses an XLSX or CSV export, normalizes each row, and stores it. Re-running on the same file is safe: previously seen rows count as duplicates, not errors.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		result, err := ingestFile(ctx, st, ingestFilePath, ingestCompany)
		if err != nil {
			return err
		}

		logBatchResult(result, ingestFilePath)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFilePath, "file", "", "path to XLSX/CSV export (required)")
	ingestCmd.Flags().StringVar(&ingestCompany, "company", "", "company ID for rows without a company column")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

// ingestFile parses and ingests one export file end to end.
func ingestFile(ctx context.Context, st store.Store, path, companyID string) (model.BatchResult, error) {
	header, cells, err := readSpreadsheet(path)
	if err != nil {
		return model.BatchResult{}, eris.Wrapf(err, "read %s", path)
	}

	rows, err := mapRows(header, cells, companyID, filepath.Base(path))
	if err != nil {
		return model.BatchResult{}, eris.Wrapf(err, "map %s", path)
	}

	ing, err := newIngestor(st)
	if err != nil {
		return model.BatchResult{}, err
	}

	result, err := ing.IngestBatch(ctx, rows)
	if err != nil {
		return model.BatchResult{}, eris.Wrapf(err, "ingest %s", path)
	}
	return result, nil
}

func logBatchResult(result model.BatchResult, source string) {
	for _, rej := range result.Rejected {
		zap.L().Warn("row rejected",
			zap.String("source", source),
			zap.String("reason", rej.Reason),
			zap.String("company", rej.Row.CompanyID),
			zap.String("product", rej.Row.ProductName),
			zap.String("date", rej.Row.Date),
		)
	}
	zap.L().Info("ingest complete",
		zap.String("source", source),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicate", result.Duplicate),
		zap.Int("rejected", len(result.Rejected)),
	)
}
