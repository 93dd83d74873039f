package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/join"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/store"
	"github.com/sells-group/housing-cli/internal/table"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join listings to assessor parcels by address",
	Long: `Matches each Redfin listing to a King County parcel, first by exact
normalized address and then by fuzzy street similarity within each zip code.

Examples:
  housing-cli join --county data/kc.csv --listing data/redfin.csv --out data/output/joined.xlsx
  housing-cli join --county data/kc.csv --listing data/redfin.csv --no-store`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("join"); err != nil {
			return err
		}

		countyPath, _ := cmd.Flags().GetString("county")
		listingPath, _ := cmd.Flags().GetString("listing")
		out, _ := cmd.Flags().GetString("out")
		noStore, _ := cmd.Flags().GetBool("no-store")

		county, err := loadTable(ctx, countyPath)
		if err != nil {
			return eris.Wrap(err, "read --county")
		}
		listing, err := loadTable(ctx, listingPath)
		if err != nil {
			return eris.Wrap(err, "read --listing")
		}

		var st store.Store
		if !noStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

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

// joinInput carries the tables of one join and where they came from.
type joinInput struct {
	County      *table.Table
	Listing     *table.Table
	CountyPath  string
	ListingPath string

	// Out is the result file. Empty writes under export.dir.
	Out string
}

type joinRun struct {
	Run    *model.Run
	Result *join.Result
	Path   string
}

// runJoin joins the inputs, writes the result file, and records the run in
// st. A nil st skips persistence.
func runJoin(ctx context.Context, st store.Store, in joinInput) (*joinRun, error) {
	log := zap.L().With(zap.String("component", "join"))

	joiner, err := newJoiner()
	if err != nil {
		return nil, err
	}

	jr := &joinRun{}
	if st != nil {
		run, err := st.CreateRun(ctx, in.CountyPath, in.ListingPath)
		if err != nil {
			return nil, err
		}
		jr.Run = run
		log = log.With(zap.String("run_id", run.ID))
	}

	fail := func(err error) (*joinRun, error) {
		if jr.Run != nil {
			if ferr := st.FailRun(ctx, jr.Run.ID, err); ferr != nil {
				log.Error("join: failed to record run failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	res, err := joiner.JoinTables(ctx, in.County, in.Listing)
	if err != nil {
		return fail(err)
	}
	jr.Result = res

	jr.Path = in.Out
	if jr.Path == "" {
		name := "joined.csv"
		if jr.Run != nil {
			name = fmt.Sprintf("joined_%s.csv", jr.Run.ID)
		}
		jr.Path = filepath.Join(cfg.Export.Dir, name)
	}
	if err := writeTable(jr.Path, res.Table); err != nil {
		return fail(err)
	}

	if jr.Run != nil {
		if _, err := st.SaveMatches(ctx, jr.Run.ID, res.Matches); err != nil {
			return fail(err)
		}
		if _, err := st.SaveMalformed(ctx, jr.Run.ID, res.Malformed); err != nil {
			return fail(err)
		}
		if err := st.CompleteRun(ctx, jr.Run.ID, res.Stats); err != nil {
			return nil, err
		}
		jr.Run.Status = model.RunStatusComplete
		jr.Run.Stats = res.Stats
	}

	log.Info("join: complete",
		zap.Int("listings", res.Stats.ListingRows),
		zap.Int("exact", res.Stats.ExactMatches),
		zap.Int("fuzzy", res.Stats.FuzzyMatches),
		zap.Int("unmatched", res.Stats.Unmatched),
		zap.Int("malformed", res.Stats.Malformed),
		zap.String("path", jr.Path),
	)
	return jr, nil
}

func printJoinSummary(w, errW io.Writer, jr *joinRun) {
	s := jr.Result.Stats
	if jr.Run != nil {
		fmt.Fprintf(w, "Run:        %s\n", jr.Run.ID)
	}
	fmt.Fprintf(w, "Output:     %s\n", jr.Path)
	fmt.Fprintf(w, "Listings:   %d\n", s.ListingRows)
	fmt.Fprintf(w, "Exact:      %d\n", s.ExactMatches)
	fmt.Fprintf(w, "Fuzzy:      %d\n", s.FuzzyMatches)
	fmt.Fprintf(w, "Unmatched:  %d\n", s.Unmatched)
	fmt.Fprintf(w, "Match rate: %.1f%%\n", s.MatchRate()*100)
	if s.Malformed > 0 {
		fmt.Fprintf(errW, "warning: %d candidate matches had non-integer keys\n", s.Malformed)
	}
}

func init() {
	joinCmd.Flags().String("county", "", "organized county table (.csv or .xlsx)")
	joinCmd.Flags().String("listing", "", "Redfin listing table (.csv or .xlsx)")
	joinCmd.Flags().String("out", "", "result file (.csv or .xlsx); defaults under export.dir")
	joinCmd.Flags().Bool("no-store", false, "skip recording the run")
	_ = joinCmd.MarkFlagRequired("county")
	_ = joinCmd.MarkFlagRequired("listing")
	rootCmd.AddCommand(joinCmd)
}
