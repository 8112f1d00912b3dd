package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/bifpn/backend/cpu"
	"github.com/born-ml/bifpn/bifpn"
	"github.com/born-ml/bifpn/nn"
)

func newSummaryCmd() *cobra.Command {
	var opts modelOptions
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a parameter table per block and fusion unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := buildModel(cmd, &opts, cpu.New())
			if err != nil {
				return err
			}
			return printSummary(cmd, model)
		},
	}
	opts.register(cmd)
	return cmd
}

func printSummary(cmd *cobra.Command, model *bifpn.BiFPN[*cpu.Backend]) error {
	cfg := model.Config()
	w := cmd.OutOrStdout()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"BLOCK", "UNIT", "INPUTS", "PARAMS", "FUSION WEIGHTS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for i, block := range model.Blocks() {
		for _, name := range bifpn.UnitNames {
			unit := block.Unit(name)
			table.Append([]string{
				strconv.Itoa(i),
				name,
				strconv.Itoa(unit.Inputs()),
				humanize.Comma(int64(nn.CountParameters(unit.Parameters()))),
				formatWeights(unit.EffectiveWeights()),
			})
		}
	}
	table.Render()

	params := model.NumParameters()
	fmt.Fprintf(w, "\nfeatures=%d blocks=%d separable=%v\n", cfg.Features, cfg.Blocks, cfg.Separable)
	if cfg.InChannels != nil {
		fmt.Fprintf(w, "lateral inputs: %v\n", cfg.InChannels)
	}
	fmt.Fprintf(w, "total parameters: %s (%s as float32)\n",
		humanize.Comma(int64(params)), humanize.Bytes(uint64(params)*4))
	return nil
}

func formatWeights(w []float32) string {
	parts := make([]string, len(w))
	for i, v := range w {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 3, 32)
	}
	return strings.Join(parts, " ")
}
