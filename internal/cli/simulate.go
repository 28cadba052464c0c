package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateCode string
	simulateRate float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-tick",
	Short: "Append one synthetic rate tick and evaluate alerts against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCode == "" {
			return errors.New("--code must be provided")
		}
		if simulateRate <= 0 {
			return errors.New("--rate must be greater than 0")
		}

		return getApp().SimulateTick(cmd.Context(), simulateCode, decimal.NewFromFloat(simulateRate))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCode, "code", "", "Currency code")
	simulateCmd.Flags().Float64Var(&simulateRate, "rate", 0, "Rate value for the synthetic tick")
}
