package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/bifpn/backend/cpu"
	"github.com/born-ml/bifpn/bifpn"
)

func newExportCmd() *cobra.Command {
	var (
		opts modelOptions
		out  string
		half bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a safetensors checkpoint of a fresh or loaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			model, err := buildModel(cmd, &opts, cpu.New())
			if err != nil {
				return err
			}
			if err := bifpn.Save(out, model, bifpn.SaveOptions{Half: half}); err != nil {
				return err
			}

			info, err := os.Stat(out)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"path": out, "half": half, "bytes": info.Size()}).Info("checkpoint written")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, humanize.Bytes(uint64(info.Size()))) //nolint:gosec // G115: file size is non-negative
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path")
	cmd.Flags().BoolVar(&half, "half", false, "Store weights as float16")
	return cmd
}
