package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dilution-ops-backend/internal/robot"
)

var (
	triggerTask    string
	triggerMessage string
	triggerPreset  string
)

var robotCmd = &cobra.Command{
	Use:   "robot",
	Short: "Talk to the robot API directly",
}

var robotLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the robot task history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logs, err := robot.New(cfg.Endpoints.RobotURL, cfg.Endpoints.Timeout).FetchLogs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTASK\tPI\tUNITY\tMESSAGE")
		for _, l := range logs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", l.LogID, l.TaskName, l.PiStatus, l.UnityStatus, l.Message)
		}
		return w.Flush()
	},
}

var robotTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a robot task",
	RunE: func(cmd *cobra.Command, args []string) error {
		if triggerPreset != "" {
			p, ok := robot.FindPreset(triggerPreset)
			if !ok {
				return fmt.Errorf("unknown preset %q", triggerPreset)
			}
			triggerTask, triggerMessage = p.TaskName, p.Message
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		id, err := robot.New(cfg.Endpoints.RobotURL, cfg.Endpoints.Timeout).Trigger(cmd.Context(), triggerTask, triggerMessage)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task '%s' triggered with ID %s.\n", triggerTask, id)
		return nil
	},
}

func init() {
	robotCmd.AddCommand(robotLogsCmd)
	robotCmd.AddCommand(robotTriggerCmd)

	robotTriggerCmd.Flags().StringVar(&triggerTask, "task", "", "Task name")
	robotTriggerCmd.Flags().StringVar(&triggerMessage, "message", "", "Task message")
	robotTriggerCmd.Flags().StringVar(&triggerPreset, "preset", "", "Built-in task (manual-dilution, calibration)")
}
