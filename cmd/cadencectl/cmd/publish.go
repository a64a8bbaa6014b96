package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/drewmudry/cadence-api/publishing"
)

var runDueLimit int

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Publish approved drafts whose time has come",
	Long:  `Select approved drafts scheduled at or before now that still have pending jobs, oldest first, and attempt every pending job once.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		res, err := a.Dispatcher.RunDue(cmd.Context(), publishing.ClampLimit(runDueLimit))
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var publishNowCmd = &cobra.Command{
	Use:   "publish-now [draft_id]",
	Short: "Publish one draft immediately, retrying failed jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid draft id %q", args[0])
		}

		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		res, err := a.Dispatcher.PublishNow(cmd.Context(), uint(id))
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	runDueCmd.Flags().IntVar(&runDueLimit, "limit", publishing.DefaultLimit, "maximum drafts to process (1-100)")
	rootCmd.AddCommand(runDueCmd, publishNowCmd)
}
