package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/housing-cli/internal/organize"
	"github.com/sells-group/housing-cli/internal/redfin"
	"github.com/sells-group/housing-cli/internal/table"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, organize, and join in one pass",
	Long: `Downloads the assessor extracts and the Redfin listings, organizes the
county data, joins listings to parcels, exports the result, and records the run.

Examples:
  housing-cli run --zip 98105 --out data/output/joined.xlsx
  housing-cli run --zip 98105,98115 --start 2015-01-01 --end 2019-12-31 --keep-county data/kc.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		req, err := organizeRequest(cmd)
		if err != nil {
			return err
		}

		var (
			in      organize.Inputs
			listing *table.Table
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			in, err = loadCountyInputs(gctx, cmd)
			return err
		})
		g.Go(func() error {
			var err error
			listing, err = newRedfinClient(newFetcher()).Get(gctx)
			return eris.Wrap(err, "run: fetch listings")
		})
		if err := g.Wait(); err != nil {
			return err
		}

		county, err := organizeCounty(in, req)
		if err != nil {
			return err
		}

		countyPath, _ := cmd.Flags().GetString("keep-county")
		if countyPath == "" {
			countyPath = filepath.Join(cfg.Export.Dir, "county.csv")
		}
		if err := writeTable(countyPath, county); err != nil {
			return err
		}
		zap.L().Info("run: organized county data saved", zap.Int("rows", county.Len()), zap.String("path", countyPath))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		listingPath := cfg.Redfin.URL
		if listingPath == "" {
			listingPath = redfin.DefaultURL
		}

		out, _ := cmd.Flags().GetString("out")
		jr, err := runJoin(ctx, st, joinInput{
			County:      county,
			Listing:     listing,
			CountyPath:  countyPath,
			ListingPath: listingPath,
			Out:         out,
		})
		if err != nil {
			return err
		}
		printJoinSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), jr)
		return nil
	},
}

func init() {
	addOrganizeFlags(runCmd)
	runCmd.Flags().String("out", "", "result file (.csv or .xlsx); defaults under export.dir")
	runCmd.Flags().String("keep-county", "", "where to save the organized county table")
	rootCmd.AddCommand(runCmd)
}
