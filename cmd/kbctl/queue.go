package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newQueueCmd(deps *cliDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and control the ingestion job queue",
	}
	cmd.AddCommand(newQueueStatsCmd(deps), newQueuePauseCmd(deps), newQueueResumeCmd(deps))
	return cmd
}

func newQueueStatsCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show waiting/active/completed/failed/delayed counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := deps.openQueue()
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			counts, err := q.Counts(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue counts: %w", err)
			}
			return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
				{"state", "count"},
				{"waiting", fmt.Sprintf("%d", counts.Waiting)},
				{"active", fmt.Sprintf("%d", counts.Active)},
				{"delayed", fmt.Sprintf("%d", counts.Delayed)},
				{"completed", fmt.Sprintf("%d", counts.Completed)},
				{"failed", fmt.Sprintf("%d", counts.Failed)},
				{"paused", fmt.Sprintf("%v", counts.Paused)},
			}).Render()
		},
	}
}

func newQueuePauseCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop the queue from handing out new jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := deps.openQueue()
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			if err := q.Pause(cmd.Context()); err != nil {
				return fmt.Errorf("pause queue: %w", err)
			}
			pterm.Success.Println("queue paused")
			return nil
		},
	}
}

func newQueueResumeCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume handing out new jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := deps.openQueue()
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			if err := q.Resume(cmd.Context()); err != nil {
				return fmt.Errorf("resume queue: %w", err)
			}
			pterm.Success.Println("queue resumed")
			return nil
		},
	}
}
