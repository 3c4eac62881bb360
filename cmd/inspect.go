package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gpkg-cli/internal/coerce"
	"github.com/sells-group/gpkg-cli/internal/convert"
	"github.com/sells-group/gpkg-cli/internal/loader"
)

// inspectReport is the YAML document printed by inspect.
type inspectReport struct {
	File           string                `yaml:"file"`
	Rows           int                   `yaml:"rows"`
	RenamedColumns []string              `yaml:"renamed_columns,omitempty"`
	Columns        []coerce.ColumnReport `yaml:"columns"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show how each column would be retyped, without writing",
	Long:  "Loads a GeoJSON, Shapefile, XLSX or CSV file (or GeoJSON from stdin with -) and prints the per-column coercion report as YAML.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		var (
			res *convert.Result
			err error
		)
		if args[0] == "-" {
			res, err = inspectStdin(cmd)
		} else {
			_, res, err = convert.Prepare(inspectRequest(args[0]))
		}
		if err != nil {
			return eris.Wrap(err, "inspect")
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(inspectReport{
			File:           args[0],
			Rows:           res.Rows,
			RenamedColumns: res.RenamedColumns,
			Columns:        res.Report.Columns,
		}); err != nil {
			return eris.Wrap(err, "inspect: encode report")
		}
		return eris.Wrap(enc.Close(), "inspect: flush report")
	},
}

func inspectStdin(cmd *cobra.Command) (*convert.Result, error) {
	t, err := loader.LoadReader("stdin", cmd.InOrStdin(), loader.Options{Charset: cfg.Convert.Charset})
	if err != nil {
		return nil, err
	}
	return convert.Apply(t, inspectRequest("")), nil
}

func inspectRequest(input string) convert.Request {
	return convert.Request{
		Input:          input,
		Charset:        cfg.Convert.Charset,
		SRID:           cfg.Convert.SRSID,
		Workers:        cfg.Convert.Workers,
		DateNameMarker: cfg.Convert.DateNameMarker,
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
