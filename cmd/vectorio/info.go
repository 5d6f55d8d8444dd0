package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tingold/vectorio"
	"github.com/tingold/vectorio/flatgeobuf"
)

var infoCmd = &cobra.Command{
	Use:   "info <location>",
	Short: "Describe the layers of a dataset",
	Long: `info lists the layers of a dataset with their geometry type, spatial
reference, feature count and fields.`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := vectorio.Open(cmd.Context(), args[0], Cfg.GetString("input-format"))
		if err != nil {
			return err
		}
		defer ds.Close()
		return describe(cmd.OutOrStdout(), args[0], ds)
	},
}

func describe(w io.Writer, location string, ds vectorio.Dataset) error {
	n := ds.LayerCount()
	fmt.Fprintf(w, "%s: %d layer(s)\n", location, n)
	for i := 0; i < n; i++ {
		layer, err := ds.Layer(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nlayer %d: %s\n", i, layer.Name())
		fmt.Fprintf(w, "  geometry: %s\n", layer.GeometryType())
		if srs := layer.SRS(); srs != "" {
			fmt.Fprintf(w, "  srs:      %s\n", srs)
		}
		fmt.Fprintf(w, "  features: %d\n", layer.FeatureCount())

		if fl, ok := layer.(*flatgeobuf.Layer); ok {
			if h := fl.Header(); h != nil {
				fmt.Fprintf(w, "  has z:    %t\n", h.HasZ)
				fmt.Fprintf(w, "  indexed:  %t\n", h.HasIndex)
				e := h.Envelope
				fmt.Fprintf(w, "  extent:   %g,%g,%g,%g\n", e[0], e[1], e[2], e[3])
			}
		}

		fields := layer.Fields()
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintf(w, "  fields:\n")
		for _, f := range fields {
			t := f.Type.String()
			if f.SubType == vectorio.SubTypeBoolean {
				t += "(Boolean)"
			}
			fmt.Fprintf(w, "    %-12s %s\n", f.Name, t)
		}
	}
	return nil
}
