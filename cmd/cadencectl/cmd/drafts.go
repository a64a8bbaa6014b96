package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/recurrence"
)

var generateAllCmd = &cobra.Command{
	Use:   "generate-all",
	Short: "Materialize drafts for every active brand",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		res, err := a.Nightly.GenerateAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var (
	previewRule  uint
	previewMonth string
	previewNow   string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the occurrences a rule expands to in one month",
	Long:  `Expand one schedule rule for a calendar month without writing anything. Occurrences at or before --now (default: the current time) are omitted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, err := recurrence.ParseMonth(previewMonth)
		if err != nil {
			return fmt.Errorf("--month: %w", err)
		}
		now := time.Now().UTC()
		if previewNow != "" {
			if now, err = time.Parse(time.RFC3339, previewNow); err != nil {
				return fmt.Errorf("--now: %w", err)
			}
		}

		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		var rule models.ScheduleRule
		if err := a.DB.WithContext(cmd.Context()).First(&rule, previewRule).Error; err != nil {
			return fmt.Errorf("load rule %d: %w", previewRule, err)
		}

		occs, err := recurrence.Expand(rule, month, now)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rule %d (%s, %s) in %s: %d occurrences\n", rule.ID, rule.Frequency, rule.Timezone, month, len(occs))
		for _, o := range occs {
			channels := make([]string, len(o.Channels))
			for i, ch := range o.Channels {
				channels[i] = string(ch)
			}
			line := fmt.Sprintf("  %s  %s %s  %s", o.ScheduledFor.UTC().Format(time.RFC3339), o.LocalDate, o.TimeOfDay, strings.Join(channels, ","))
			if o.OffsetKey != "" {
				line += "  [" + o.OffsetKey + "]"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().UintVar(&previewRule, "rule", 0, "schedule rule id")
	previewCmd.Flags().StringVar(&previewMonth, "month", "", "target month, YYYY-MM")
	previewCmd.Flags().StringVar(&previewNow, "now", "", "reference time, RFC3339")
	_ = previewCmd.MarkFlagRequired("rule")
	_ = previewCmd.MarkFlagRequired("month")
	rootCmd.AddCommand(generateAllCmd, previewCmd)
}
