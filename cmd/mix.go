package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/graintrack/weighbridge-cli/internal/db"
	"github.com/graintrack/weighbridge-cli/internal/model"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

var (
	mixCompany     string
	mixProductCode string
	mixProductName string
	mixSiteName    string
	mixSiteCode    string
	mixImportFile  string
	mixExportFile  string
)

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "Manage the product-to-site mix registry",
}

var mixUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Create or update one registry entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entry, err := st.UpsertMix(ctx, model.MixEntry{
			CompanyID:   mixCompany,
			ProductCode: mixProductCode,
			ProductName: mixProductName,
			SiteName:    mixSiteName,
			SiteCode:    mixSiteCode,
		})
		if err != nil {
			return eris.Wrap(err, "upsert mix entry")
		}
		return printJSON(cmd, entry)
	},
}

var mixResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Look up the registry entry for a product",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entry, err := st.ResolveMix(ctx, mixCompany, mixProductCode, mixProductName, mixSiteName)
		if err != nil {
			return eris.Wrap(err, "resolve mix entry")
		}
		if entry == nil {
			cmd.Println("no matching entry")
			return nil
		}
		return printJSON(cmd, entry)
	},
}

var mixListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries for a company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entries, err := st.ListMix(ctx, mixCompany)
		if err != nil {
			return eris.Wrap(err, "list mix entries")
		}
		return printJSON(cmd, entries)
	},
}

var mixDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one registry entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		if err := st.DeleteMix(ctx, mixCompany, mixProductCode, mixProductName, mixSiteName); err != nil {
			return eris.Wrap(err, "delete mix entry")
		}
		cmd.Println("deleted")
		return nil
	},
}

var mixImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load registry entries from a mapping file",
	Long:  "Reads a CSV or XLSX mapping file with company, product code, product name, site name, and site code columns and upserts every row. On Postgres the whole file goes in as one bulk upsert.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entries, err := readMixFile(mixImportFile, mixCompany)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			cmd.Println("mapping file has no rows")
			return nil
		}

		var n int64
		if pg, ok := st.(*store.PostgresStore); ok {
			rows := make([][]any, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []any{e.CompanyID, e.ProductCode, e.ProductName, e.SiteName, e.SiteCode})
			}
			n, err = db.BulkUpsert(ctx, pg.Pool(), db.UpsertConfig{
				Table:        "mix_entries",
				Columns:      []string{"company_id", "product_code", "product_name", "site_name", "site_code"},
				ConflictKeys: []string{"company_id", "product_name", "site_name"},
			}, rows)
			if err != nil {
				return eris.Wrap(err, "bulk upsert mix entries")
			}
		} else {
			for _, e := range entries {
				if _, err := st.UpsertMix(ctx, e); err != nil {
					return eris.Wrapf(err, "upsert mix entry %s/%s", e.CompanyID, e.ProductName)
				}
				n++
			}
		}

		zap.L().Info("mix import complete",
			zap.String("file", mixImportFile),
			zap.Int64("entries", n),
		)
		return nil
	},
}

var mixExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a company's registry entries to a YAML file",
	Long:  "Dumps the mix registry for one company as YAML, suitable for review, backup, or re-seeding another environment.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		entries, err := st.ListMix(ctx, mixCompany)
		if err != nil {
			return eris.Wrap(err, "list mix entries")
		}

		f, err := os.Create(mixExportFile)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		defer f.Close()

		enc := yaml.NewEncoder(f)
		if err := enc.Encode(entries); err != nil {
			return eris.Wrap(err, "encode mix entries")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "finish export")
		}

		zap.L().Info("mix export complete",
			zap.String("file", mixExportFile),
			zap.Int("entries", len(entries)),
		)
		return nil
	},
}

// readMixFile parses a mapping file into mix entries. Column headers are
// matched case-insensitively against the standard mapping export layout.
func readMixFile(path, defaultCompany string) ([]model.MixEntry, error) {
	header, rows, err := readSpreadsheet(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cell := func(cells []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	if _, ok := idx["product"]; !ok {
		return nil, eris.Errorf("mapping file %s is missing a Product column", path)
	}
	if _, ok := idx["site"]; !ok {
		return nil, eris.Errorf("mapping file %s is missing a Site column", path)
	}

	out := make([]model.MixEntry, 0, len(rows))
	for _, cells := range rows {
		e := model.MixEntry{
			CompanyID:   cell(cells, "company"),
			ProductCode: cell(cells, "product code"),
			ProductName: cell(cells, "product"),
			SiteName:    cell(cells, "site"),
			SiteCode:    cell(cells, "site code"),
		}
		if e.CompanyID == "" {
			e.CompanyID = defaultCompany
		}
		if e.ProductName == "" && e.SiteName == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{mixUpsertCmd, mixResolveCmd, mixListCmd, mixDeleteCmd, mixImportCmd, mixExportCmd} {
		c.Flags().StringVar(&mixCompany, "company", "", "company ID (required)")
		_ = c.MarkFlagRequired("company")
	}
	for _, c := range []*cobra.Command{mixUpsertCmd, mixResolveCmd, mixDeleteCmd} {
		c.Flags().StringVar(&mixProductCode, "product-code", "", "product code")
		c.Flags().StringVar(&mixProductName, "product", "", "product name")
		c.Flags().StringVar(&mixSiteName, "site", "", "site name")
	}
	mixUpsertCmd.Flags().StringVar(&mixSiteCode, "site-code", "", "site code")
	mixImportCmd.Flags().StringVar(&mixImportFile, "file", "", "path to mapping CSV/XLSX (required)")
	_ = mixImportCmd.MarkFlagRequired("file")
	mixExportCmd.Flags().StringVar(&mixExportFile, "file", "", "destination YAML path (required)")
	_ = mixExportCmd.MarkFlagRequired("file")

	mixCmd.AddCommand(mixUpsertCmd, mixResolveCmd, mixListCmd, mixDeleteCmd, mixImportCmd, mixExportCmd)
	rootCmd.AddCommand(mixCmd)
}
