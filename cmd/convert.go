package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gpkg-cli/internal/convert"
)

var (
	convertInput   string
	convertOutput  string
	convertWorkers int
)

var convertCmd = &cobra.Command{
	Use:   "convert <source-id> <layer>",
	Short: "Convert <work_dir>/<source-id>.json into a GeoPackage layer",
	Long: "Reads <work_dir>/<source-id>.json, numbers the rows, retypes decimal-comma and date columns " +
		"and writes <work_dir>/<source-id>.gpkg with one layer. --input and --output override the paths.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		in, out := convert.Paths(cfg.Convert.WorkDir, args[0])
		if convertInput != "" {
			in = convertInput
		}
		if convertOutput != "" {
			out = convertOutput
		}
		workers := cfg.Convert.Workers
		if cmd.Flags().Changed("workers") {
			workers = convertWorkers
		}

		res, err := convert.Run(cmd.Context(), convert.Request{
			Input:          in,
			Output:         out,
			Layer:          args[1],
			Charset:        cfg.Convert.Charset,
			SRID:           cfg.Convert.SRSID,
			Workers:        workers,
			DateNameMarker: cfg.Convert.DateNameMarker,
		})
		if err != nil {
			zap.L().Error("conversion failed", zap.String("source", args[0]), zap.Error(err))
			return eris.Wrap(err, "convert")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows written to layer %s\n", res.Output, res.Rows, res.Layer)
		for _, c := range res.Report.Columns {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %-22s %s\n", c.Name, c.Classification, c.Kind)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertInput, "input", "", "input file (default <work_dir>/<source-id>.json)")
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "output file (default <work_dir>/<source-id>.gpkg)")
	convertCmd.Flags().IntVar(&convertWorkers, "workers", 0, "columns coerced in parallel (default from config)")
	rootCmd.AddCommand(convertCmd)
}
