// Package cli provides job operation commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/events"
	"github.com/linkmesh/linkmesh/internal/models"
)

// newJobsCmd creates the 'jobs' command group.
func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Job operations (status, watch, stop, force-complete)",
		Long:  `Commands for inspecting and controlling analysis jobs.`,
	}

	jobsCmd.AddCommand(newJobsStatusCmd())
	jobsCmd.AddCommand(newJobsWatchCmd())
	jobsCmd.AddCommand(newJobsStopCmd())
	jobsCmd.AddCommand(newJobsForceCompleteCmd())

	return jobsCmd
}

// newJobsStatusCmd creates the 'jobs status' command.
func newJobsStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current status of a job",
		Long: `Fetch the current status of a job once.

Example:
  linkmesh jobs status 1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			client, _, err := getAPIClient()
			if err != nil {
				return err
			}

			frame, err := client.JobStatus(GetContext(), jobID)
			if err != nil {
				if errors.Is(err, api.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", jobID)
				}
				return fmt.Errorf("failed to fetch job status: %w", err)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Field", "Value")
			table.Append("Job ID", jobID)
			table.Append("Status", string(frame.Status))
			table.Append("Progress", strconv.Itoa(frame.Progress)+"%")
			table.Append("Message", frame.Message)
			if frame.ResultReference != "" {
				table.Append("Result file", frame.ResultReference)
			}
			return table.Render()
		},
	}
	return cmd
}

// newJobsWatchCmd creates the 'jobs watch' command.
func newJobsWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job live until it finishes",
		Long: `Follow a job: stream status over the live channel, reconnect when it
drops, and fall back to polling when the channel stays down.

Example:
  linkmesh jobs watch 1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()

			// Seed from a first poll so the bar starts from the real
			// state, and so an unknown job fails fast.
			frame, err := client.JobStatus(ctx, jobID)
			if err != nil {
				if errors.Is(err, api.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", jobID)
				}
				return fmt.Errorf("failed to fetch job status: %w", err)
			}

			bus := events.NewBus(events.DefaultBuffer)
			defer bus.Close()

			syn := newSynchronizer(cfg, client, jobID, bus, &frame)
			desc := followJob(ctx, syn, bus)

			switch desc.Status {
			case models.StatusCompleted:
				fmt.Printf("Job %s completed: %s\n", jobID, desc.Message)
				if desc.ResultReference != "" {
					fmt.Printf("Results: linkmesh results %s\n", jobID)
				}
				return nil
			case models.StatusFailed:
				return fmt.Errorf("job %s failed: %s", jobID, desc.Message)
			default:
				fmt.Printf("Detached from job %s (status %s)\n", jobID, desc.Status)
				return nil
			}
		},
	}
	return cmd
}

// newJobsStopCmd creates the 'jobs stop' command.
func newJobsStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Ask the engine to stop a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			client, _, err := getAPIClient()
			if err != nil {
				return err
			}

			status, message, err := client.StopJob(GetContext(), jobID)
			if err != nil {
				if errors.Is(err, api.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", jobID)
				}
				return fmt.Errorf("failed to stop job: %w", err)
			}

			fmt.Printf("Job %s: %s (%s)\n", jobID, status, message)
			return nil
		},
	}
	return cmd
}

// newJobsForceCompleteCmd creates the 'jobs force-complete' command.
func newJobsForceCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-complete <job-id>",
		Short: "Mark a stuck job as completed if its result file exists",
		Long: `Promote a job to completed. The engine only accepts this when the
result file already exists; a job that produced nothing cannot be promoted.
Running it on an already-completed job is harmless.

Example:
  linkmesh jobs force-complete 1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]

			client, _, err := getAPIClient()
			if err != nil {
				return err
			}

			frame, err := client.ForceComplete(GetContext(), jobID)
			if err != nil {
				if errors.Is(err, api.ErrNoResults) {
					return fmt.Errorf("job %s has no result file to promote", jobID)
				}
				if errors.Is(err, api.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", jobID)
				}
				return fmt.Errorf("force-complete failed: %w", err)
			}

			fmt.Printf("Job %s marked completed", jobID)
			if frame.ResultReference != "" {
				fmt.Printf(" (result: %s)", frame.ResultReference)
			}
			fmt.Println()
			return nil
		},
	}
	return cmd
}
