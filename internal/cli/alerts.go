package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"forex-observer/internal/app"
)

var (
	alertPair      string
	alertCondition string
	alertThreshold string
	alertChannels  []string
	alertEmail     string
	alertPhone     string
	alertMessage   string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertsList(cmd.Context())
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a price alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AddAlertOptions{
			Pair:      alertPair,
			Condition: alertCondition,
			Threshold: alertThreshold,
			Channels:  alertChannels,
			Email:     alertEmail,
			Phone:     alertPhone,
			Message:   alertMessage,
		}
		return getApp().AlertsAdd(cmd.Context(), opts)
	},
}

var alertsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an alert by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertsRemove(cmd.Context(), args[0])
	},
}

func init() {
	alertsAddCmd.Flags().StringVar(&alertPair, "pair", "", "Currency pair, e.g. EUR/USD")
	alertsAddCmd.Flags().StringVar(&alertCondition, "condition", "", "GREATER_THAN, LESS_THAN, or EQUAL")
	alertsAddCmd.Flags().StringVar(&alertThreshold, "threshold", "", "Threshold price")
	alertsAddCmd.Flags().StringSliceVar(&alertChannels, "channel", nil, "Notification channel (EMAIL, SMS, CALL); repeatable")
	alertsAddCmd.Flags().StringVar(&alertEmail, "email", "", "Recipient address for the EMAIL channel")
	alertsAddCmd.Flags().StringVar(&alertPhone, "phone", "", "Recipient number for the SMS and CALL channels")
	alertsAddCmd.Flags().StringVar(&alertMessage, "message", "", "Custom text appended to notifications")

	for _, name := range []string{"pair", "condition", "threshold"} {
		if err := alertsAddCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("mark flag required: %v", err))
		}
	}

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAddCmd)
	alertsCmd.AddCommand(alertsRemoveCmd)
}
