package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingold/vectorio"
)

var translateCmd = &cobra.Command{
	Use:   "translate <src> <dst>",
	Short: "Copy a layer from one dataset to another",
	Long: `translate reads one layer of src into local coordinates and writes it
to dst. Reader and writer share one run, so the output is shifted back by the
same false origin the input was shifted by.`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := vectorio.NewRunContext()
		ropts := readerOptions(args[0], Cfg)

		ds, err := vectorio.Open(cmd.Context(), ropts.Location, ropts.Format)
		if err != nil {
			return err
		}
		var srs string
		if layer, err := ds.Layer(ropts.LayerIndex); err == nil {
			srs = layer.SRS()
		}
		table, err := vectorio.NewFeatureReader(rc, ropts.BaseElevation).Read(ds, ropts.LayerIndex)
		ds.Close()
		if err != nil {
			return err
		}

		wopts, err := writerOptions(args[1], srs, Cfg)
		if err != nil {
			return err
		}
		w := vectorio.NewFeatureWriter(rc, wopts)
		if err := w.Write(cmd.Context(), table.Geometries, table.Attributes); err != nil {
			return fmt.Errorf("vectorio: translate %s: %w", args[1], err)
		}

		rows, features, commits := w.Stats()
		rc.Log.WithFields(logrus.Fields{
			"src":      args[0],
			"dst":      args[1],
			"rows":     rows,
			"features": features,
			"commits":  commits,
		}).Info("translated layer")
		return nil
	},
}
