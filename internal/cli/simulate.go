package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePair   string
	simulatePrices []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "以合成价格序列触发真实告警通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePair == "" {
			return errors.New("--pair 必须提供")
		}
		if len(simulatePrices) == 0 {
			return errors.New("--price 至少提供一个")
		}

		prices := make([]decimal.Decimal, 0, len(simulatePrices))
		for _, raw := range simulatePrices {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("无法解析 --price %q: %w", raw, err)
			}
			prices = append(prices, price)
		}

		return getApp().SimulateAlert(cmd.Context(), simulatePair, prices)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePair, "pair", "", "货币对, 例如 EUR/USD")
	simulateCmd.Flags().StringSliceVar(&simulatePrices, "price", nil, "按顺序评估的价格序列; 可重复")
}
