package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/desktopai/runcontrol/internal/domain"
)

func newRunCommand(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, inspect, approve, and cancel autonomy runs",
	}

	cmd.AddCommand(newRunStartCommand(client))
	cmd.AddCommand(newRunListCommand(client))
	cmd.AddCommand(newRunGetCommand(client))
	cmd.AddCommand(newRunApproveCommand(client))
	cmd.AddCommand(newRunCancelCommand(client))

	return cmd
}

func newRunStartCommand(client func() *apiClient) *cobra.Command {
	var (
		maxIterations int
		autonomy      string
		autoApprove   bool
	)
	cmd := &cobra.Command{
		Use:   "start <objective>",
		Short: "Plan and start an autonomy run for an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"objective":                 args[0],
				"max_iterations":            maxIterations,
				"autonomy_level":            autonomy,
				"auto_approve_irreversible": autoApprove,
			}
			var run domain.AutonomyRunRecord
			if err := client().do("POST", "/runs", body, &run); err != nil {
				return err
			}
			return printRun(&run)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (0 uses the server default)")
	cmd.Flags().StringVar(&autonomy, "autonomy", string(domain.AutonomySupervised), "supervised|guided|autonomous")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve-irreversible", false, "auto-approve irreversible steps regardless of autonomy level")
	return cmd
}

func newRunListCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known autonomy run",
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []*domain.AutonomyRunRecord
			if err := client().do("GET", "/runs", nil, &runs); err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %-16s  iter %d/%d  %s\n", r.ID, statusColor(string(r.Status)), r.Iteration, r.MaxIterations, r.Objective)
			}
			return nil
		},
	}
}

func newRunGetCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run's full record, including its agent log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run domain.AutonomyRunRecord
			if err := client().do("GET", "/runs/"+args[0], nil, &run); err != nil {
				return err
			}
			return printRun(&run)
		},
	}
}

func newRunApproveCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <run-id> <token>",
		Short: "Approve a run's mirrored approval token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run domain.AutonomyRunRecord
			if err := client().do("POST", "/runs/"+args[0]+"/approve", map[string]string{"token": args[1]}, &run); err != nil {
				return err
			}
			return printRun(&run)
		},
	}
}

func newRunCancelCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a non-terminal run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run domain.AutonomyRunRecord
			if err := client().do("POST", "/runs/"+args[0]+"/cancel", nil, &run); err != nil {
				return err
			}
			return printRun(&run)
		},
	}
}

func printRun(r *domain.AutonomyRunRecord) error {
	fmt.Printf("%s %s\n", cyan(r.ID), statusColor(string(r.Status)))
	fmt.Printf("  task: %s\n", r.TaskID)
	fmt.Printf("  objective: %s\n", r.Objective)
	fmt.Printf("  iteration: %d/%d  autonomy: %s\n", r.Iteration, r.MaxIterations, r.AutonomyLevel)
	if r.ApprovalToken != nil {
		fmt.Printf("  approval_token: %s\n", *r.ApprovalToken)
	}
	if r.LastError != "" {
		fmt.Printf("  last_error: %s\n", red(r.LastError))
	}
	for _, entry := range r.AgentLog {
		fmt.Printf("  [%s] %s: %s\n", entry.Timestamp.Format("15:04:05"), entry.Agent, entry.Message)
	}
	return nil
}
