package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/bifpn/backend/cpu"
	"github.com/born-ml/bifpn/bifpn"
)

func newForwardCmd() *cobra.Command {
	var (
		opts  modelOptions
		batch int
		size  int
	)
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Run a random pyramid through the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend := cpu.New()
			model, err := buildModel(cmd, &opts, backend)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(model.Config().Seed + 1)) //nolint:gosec // G404: synthetic input
			in, err := randomPyramid(model.Config(), batch, size, rng, backend)
			if err != nil {
				return err
			}

			start := time.Now()
			out, err := model.Forward(in)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			log.WithFields(log.Fields{"batch": batch, "size": size, "elapsed": elapsed}).Debug("forward done")

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"LEVEL", "INPUT", "OUTPUT"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			for l := bifpn.P3; l <= bifpn.P7; l++ {
				table.Append([]string{l.String(), fmt.Sprint(in[l].Shape()), fmt.Sprint(out[l].Shape())})
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "\nforward: %s\n", elapsed.Round(time.Microsecond))
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&batch, "batch", 1, "Batch size")
	cmd.Flags().IntVar(&size, "size", 64, "P3 resolution; each coarser level halves it")
	return cmd
}
