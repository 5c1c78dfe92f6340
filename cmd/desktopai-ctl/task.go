package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/desktopai/runcontrol/internal/domain"
)

func newTaskCommand(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect, and advance tasks",
	}

	cmd.AddCommand(newTaskCreateCommand(client))
	cmd.AddCommand(newTaskListCommand(client))
	cmd.AddCommand(newTaskGetCommand(client))
	cmd.AddCommand(newTaskPlanCommand(client))
	cmd.AddCommand(newTaskRunCommand(client))
	cmd.AddCommand(newTaskApproveCommand(client))
	cmd.AddCommand(newTaskPauseCommand(client))
	cmd.AddCommand(newTaskResumeCommand(client))
	cmd.AddCommand(newTaskCancelCommand(client))

	return cmd
}

func newTaskCreateCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "create <objective>",
		Short: "Create a task with a free-text objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks", map[string]string{"objective": args[0]}, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func newTaskListCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known task",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []*domain.TaskRecord
			if err := client().do("GET", "/tasks", nil, &tasks); err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Printf("%s  %-16s  %s\n", t.ID, statusColor(string(t.Status)), t.Objective)
			}
			return nil
		},
	}
}

func newTaskGetCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("GET", "/tasks/"+args[0], nil, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

// taskPlanFile is the JSON shape accepted by `task plan --file`: a list
// of steps matching httpapi's planStepRequest.
type taskPlanFile struct {
	Steps []struct {
		Action struct {
			Name         string         `json:"name"`
			Parameters   map[string]any `json:"parameters"`
			Description  string         `json:"description"`
			Irreversible bool           `json:"irreversible"`
		} `json:"action"`
		Preconditions  []string `json:"preconditions"`
		Postconditions []string `json:"postconditions"`
	} `json:"steps"`
}

func newTaskPlanCommand(client func() *apiClient) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plan <task-id>",
		Short: "Install a plan from a JSON step file (see --file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := readFile(file)
			if err != nil {
				return err
			}
			var plan taskPlanFile
			if err := json.Unmarshal(raw, &plan); err != nil {
				return fmt.Errorf("parse plan file: %w", err)
			}
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/plan", plan, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON file of plan steps")
	return cmd
}

func newTaskRunCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Drive a planned task's advance loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/run", nil, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func newTaskApproveCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <task-id> <token>",
		Short: "Approve the task's current blocked step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/approve", map[string]string{"token": args[1]}, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func newTaskPauseCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <task-id>",
		Short: "Pause a non-terminal task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/pause", nil, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func newTaskResumeCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Resume a paused task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/resume", nil, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func newTaskCancelCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a non-terminal task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task domain.TaskRecord
			if err := client().do("POST", "/tasks/"+args[0]+"/cancel", nil, &task); err != nil {
				return err
			}
			return printTask(&task)
		},
	}
}

func printTask(t *domain.TaskRecord) error {
	fmt.Printf("%s %s\n", cyan(t.ID), statusColor(string(t.Status)))
	fmt.Printf("  objective: %s\n", t.Objective)
	if t.ApprovalToken != nil {
		fmt.Printf("  approval_token: %s\n", *t.ApprovalToken)
	}
	if t.LastError != "" {
		fmt.Printf("  last_error: %s\n", red(t.LastError))
	}
	for _, s := range t.Steps {
		fmt.Printf("  [%d] %-10s %-20s approved=%v\n", s.Index, statusColor(string(s.Status)), s.Action.Name, s.Approved)
	}
	return nil
}

func statusColor(status string) string {
	switch status {
	case "completed", "succeeded":
		return green(status)
	case "failed", "cancelled":
		return red(status)
	default:
		return gray(status)
	}
}
