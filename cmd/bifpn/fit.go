package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/bifpn/autodiff"
	"github.com/born-ml/bifpn/backend/cpu"
	"github.com/born-ml/bifpn/bifpn"
	"github.com/born-ml/bifpn/optim"
)

func newFitCmd() *cobra.Command {
	var (
		opts      modelOptions
		steps     int
		lr        float32
		optimizer string
		batch     int
		size      int
		out       string
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Train the model to reproduce a synthetic pyramid",
		Long: `Train the model on a fixed random pyramid with the input itself as the
target, using MSE loss summed over levels and the autodiff backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			backend := autodiff.New(cpu.New())
			model, err := buildModel(cmd, &opts, backend)
			if err != nil {
				return err
			}
			cfg := model.Config()
			if cfg.InChannels != nil {
				return fmt.Errorf("fit needs input and output widths to match; drop in_channels from the config")
			}
			model.SetTraining(true)

			opt, err := optim.New(optimizer, model.Parameters(), lr, backend)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(cfg.Seed + 1)) //nolint:gosec // G404: synthetic input
			in, err := randomPyramid(cfg, batch, size, rng, backend)
			if err != nil {
				return err
			}

			start := time.Now()
			var first, last float32
			for step := 1; step <= steps; step++ {
				loss, err := bifpn.TrainStep(model, opt, in, in, backend)
				if err != nil {
					return err
				}
				if step == 1 {
					first = loss
				}
				last = loss
				log.WithFields(log.Fields{"step": step, "loss": loss}).Info("fit step")
			}
			model.SetTraining(false)

			fmt.Fprintf(cmd.OutOrStdout(), "loss %.6f -> %.6f over %s steps in %s\n",
				first, last, humanize.Comma(int64(steps)), time.Since(start).Round(time.Millisecond))

			if out != "" {
				if err := bifpn.Save(out, model, bifpn.SaveOptions{}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			}
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&steps, "steps", 20, "Number of optimizer steps")
	cmd.Flags().Float32Var(&lr, "lr", 0.01, "Learning rate")
	cmd.Flags().StringVar(&optimizer, "optimizer", optim.NameAdam, "Optimizer (sgd or adam)")
	cmd.Flags().IntVar(&batch, "batch", 2, "Batch size")
	cmd.Flags().IntVar(&size, "size", 16, "P3 resolution; each coarser level halves it")
	cmd.Flags().StringVar(&out, "out", "", "Save the trained checkpoint to this path")
	return cmd
}
