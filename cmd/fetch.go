package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/kingcounty"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download source data",
	Long:  "Downloads assessor extracts from King County or the listing export from Redfin.",
}

// -- fetch county --

var fetchCountyCmd = &cobra.Command{
	Use:   "county <dataset>",
	Short: "Download one assessor dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		name, err := kingcounty.Resolve(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		out, _ := cmd.Flags().GetString("out")

		t, err := newCountyClient(newFetcher()).Fetch(ctx, name, limit)
		if err != nil {
			return eris.Wrapf(err, "fetch county %s", name)
		}
		if out == "" {
			return writeTableTo(os.Stdout, t)
		}
		if err := writeTable(out, t); err != nil {
			return err
		}
		zap.L().Info("dataset saved",
			zap.String("dataset", name),
			zap.Int("rows", t.Len()),
			zap.String("path", out),
		)
		return nil
	},
}

// -- fetch redfin --

var fetchRedfinCmd = &cobra.Command{
	Use:   "redfin",
	Short: "Download the Redfin listing export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		t, err := newRedfinClient(newFetcher()).Get(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch redfin")
		}
		t = t.Head(limit)
		if out == "" {
			return writeTableTo(os.Stdout, t)
		}
		if err := writeTable(out, t); err != nil {
			return err
		}
		zap.L().Info("listings saved", zap.Int("rows", t.Len()), zap.String("path", out))
		return nil
	},
}

// -- fetch datasets --

var fetchDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the published assessor datasets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range kingcounty.Datasets() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	fetchCountyCmd.Flags().Int("limit", 0, "maximum rows to keep (0 for all)")
	fetchCountyCmd.Flags().String("out", "", "output file (.csv or .xlsx); stdout when empty")
	fetchRedfinCmd.Flags().Int("limit", 0, "maximum rows to keep (0 for all)")
	fetchRedfinCmd.Flags().String("out", "", "output file (.csv or .xlsx); stdout when empty")

	fetchCmd.AddCommand(fetchCountyCmd)
	fetchCmd.AddCommand(fetchRedfinCmd)
	fetchCmd.AddCommand(fetchDatasetsCmd)
	rootCmd.AddCommand(fetchCmd)
}
