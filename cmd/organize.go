package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/kingcounty"
	"github.com/sells-group/housing-cli/internal/organize"
	"github.com/sells-group/housing-cli/internal/table"
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Filter and merge assessor extracts",
	Long: `Renames, filters, and merges the assessor sales, residential building,
parcel, and lookup extracts into one table of single-family sales.

Extracts given by flag are read from disk; the rest are downloaded.

Examples:
  housing-cli organize --zip 98105 --start 2015-01-01 --end 2019-12-31 --out data/kc.csv
  housing-cli organize --sales sales.csv --buildings bldg.csv --parcels parcel.csv --lookup lookup.csv --zip 98105,98115`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("organize"); err != nil {
			return err
		}

		in, err := loadCountyInputs(ctx, cmd)
		if err != nil {
			return err
		}
		req, err := organizeRequest(cmd)
		if err != nil {
			return err
		}

		out, err := organizeCounty(in, req)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			return writeTableTo(cmd.OutOrStdout(), out)
		}
		if err := writeTable(path, out); err != nil {
			return err
		}
		zap.L().Info("organized county data saved", zap.Int("rows", out.Len()), zap.String("path", path))
		return nil
	},
}

func organizeCounty(in organize.Inputs, req organize.Request) (*table.Table, error) {
	var schema *organize.Schema
	if cfg.Organize.SchemaPath != "" {
		s, err := organize.LoadSchema(cfg.Organize.SchemaPath)
		if err != nil {
			return nil, err
		}
		schema = s
	}
	o, err := organize.New(schema)
	if err != nil {
		return nil, err
	}
	return o.Organize(in, req)
}

// organizeRequest reads --zip/--start/--end, falling back to config.
func organizeRequest(cmd *cobra.Command) (organize.Request, error) {
	zips, _ := cmd.Flags().GetStringSlice("zip")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")

	if len(zips) == 0 {
		zips = cfg.Organize.Zips
	}
	if start == "" {
		start = cfg.Organize.Start
	}
	if end == "" {
		end = cfg.Organize.End
	}

	req := organize.Request{Zips: splitList(zips)}
	var err error
	if req.Start, err = organize.ParseDate(start); err != nil {
		return req, eris.Wrap(err, "invalid --start")
	}
	if req.End, err = organize.ParseDate(end); err != nil {
		return req, eris.Wrap(err, "invalid --end")
	}
	return req, nil
}

// loadCountyInputs reads the extracts given by flag and downloads the rest.
func loadCountyInputs(ctx context.Context, cmd *cobra.Command) (organize.Inputs, error) {
	var in organize.Inputs
	sources := []struct {
		flag    string
		dataset string
		dst     **table.Table
	}{
		{"sales", kingcounty.DatasetSales, &in.Sales},
		{"buildings", kingcounty.DatasetResidentialBuilding, &in.Buildings},
		{"parcels", kingcounty.DatasetParcel, &in.Parcels},
		{"lookup", kingcounty.DatasetLookup, &in.Lookup},
	}

	var remote []string
	for _, s := range sources {
		path, _ := cmd.Flags().GetString(s.flag)
		if path == "" {
			remote = append(remote, s.dataset)
			continue
		}
		t, err := loadTable(ctx, path)
		if err != nil {
			return in, eris.Wrapf(err, "read --%s", s.flag)
		}
		*s.dst = t
	}
	if len(remote) == 0 {
		return in, nil
	}

	zap.L().Info("downloading assessor extracts", zap.Strings("datasets", remote))
	fetched, err := newCountyClient(newFetcher()).FetchMany(ctx, remote, 0)
	if err != nil {
		return in, err
	}
	for _, s := range sources {
		if t, ok := fetched[s.dataset]; ok {
			*s.dst = t
		}
	}
	return in, nil
}

func addOrganizeFlags(cmd *cobra.Command) {
	cmd.Flags().String("sales", "", "sales extract (.csv or .xlsx); downloaded when empty")
	cmd.Flags().String("buildings", "", "residential building extract; downloaded when empty")
	cmd.Flags().String("parcels", "", "parcel extract; downloaded when empty")
	cmd.Flags().String("lookup", "", "lookup extract; downloaded when empty")
	cmd.Flags().StringSlice("zip", nil, "zip codes to keep (default organize.zips)")
	cmd.Flags().String("start", "", "first sale date to keep (default organize.start)")
	cmd.Flags().String("end", "", "last sale date to keep (default organize.end)")
}

func init() {
	addOrganizeFlags(organizeCmd)
	organizeCmd.Flags().String("out", "", "output file (.csv or .xlsx); stdout when empty")
	rootCmd.AddCommand(organizeCmd)
}
