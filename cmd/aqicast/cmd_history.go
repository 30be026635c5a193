package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/airwatch/aqicast/internal/config"
	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

// history prints the evaluation ledger as a table, newest first.
func newHistoryCmd() *cobra.Command {
	var (
		horizonArg string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the evaluation and deployment history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var recs []ledger.EvaluationRecord
			if horizonArg == "" {
				recs, err = a.ledger.All(ctx)
			} else {
				var horizon dataset.Horizon
				horizon, err = parseHorizonArg(horizonArg)
				if err != nil {
					return err
				}
				recs, err = a.ledger.Latest(ctx, horizon, "", limit)
			}
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no evaluation records")
				return nil
			}
			if limit > 0 && len(recs) > limit {
				recs = recs[:limit]
			}

			printHistory(recs)
			return nil
		},
	}

	cmd.Flags().StringVar(&horizonArg, "horizon", "", "restrict to one horizon, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to print")
	return cmd
}

func printHistory(recs []ledger.EvaluationRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVALUATED\tHORIZON\tALGORITHM\tMAE\tRMSE\tR2\tMAPE\tSAMPLES\tDEPLOYED")
	for _, rec := range recs {
		mape := "-"
		if rec.MAPE != nil {
			mape = fmt.Sprintf("%.2f%%", *rec.MAPE)
		}
		deployed := ""
		if rec.Deployed {
			deployed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%s\t%d\t%s\n",
			rec.EvaluatedAt.UTC().Format("2006-01-02 15:04"),
			rec.Horizon, rec.Algorithm, rec.MAE, rec.RMSE, rec.R2,
			mape, rec.TestSamples, deployed)
	}
	w.Flush()
}

func parseHorizonArg(raw string) (dataset.Horizon, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(raw, "h"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid horizon %q", raw)
	}
	return dataset.Horizon(n), nil
}
