package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/graintrack/weighbridge-cli/internal/model"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

var (
	recCompany string
	recDateKey string
	recType    string
	recLimit   int
	recOffset  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored transaction records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter := store.RecordFilter{
			CompanyID: recCompany,
			DateKey:   recDateKey,
			Limit:     recLimit,
			Offset:    recOffset,
		}
		if recType != "" {
			wt, ok := model.ParseWeighType(recType)
			if !ok {
				return eris.Errorf("invalid weigh type %q (want BUY or SELL)", recType)
			}
			filter.WeighType = wt
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		return printJSON(cmd, recs)
	},
}

var recordsDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "Show per-day record counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		days, err := st.CountByDay(ctx, recCompany, recLimit)
		if err != nil {
			return eris.Wrap(err, "count records by day")
		}
		return printJSON(cmd, days)
	},
}

func init() {
	recordsListCmd.Flags().StringVar(&recCompany, "company", "", "filter by company ID")
	recordsListCmd.Flags().StringVar(&recDateKey, "date", "", "filter by reporting day (YYYY-MM-DD)")
	recordsListCmd.Flags().StringVar(&recType, "type", "", "filter by weigh type (BUY or SELL)")
	recordsListCmd.Flags().IntVar(&recLimit, "limit", 0, "max rows to return")
	recordsListCmd.Flags().IntVar(&recOffset, "offset", 0, "rows to skip")

	recordsDaysCmd.Flags().StringVar(&recCompany, "company", "", "filter by company ID")
	recordsDaysCmd.Flags().IntVar(&recLimit, "limit", 0, "max days to return")

	recordsCmd.AddCommand(recordsListCmd, recordsDaysCmd)
	rootCmd.AddCommand(recordsCmd)
}
