package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskroster/internal/app"
	"taskroster/internal/domain"
	"taskroster/internal/engine"
	"taskroster/internal/query"
)

var taskColumns = []string{"id", "name", "deadline", "completed", "assignedUser", "assignedUserName", "description", "dateCreated"}

func taskCmd() *cobra.Command {
	tk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tk.AddCommand(taskListCmd())
	tk.AddCommand(taskGetCmd())
	tk.AddCommand(taskCreateCmd())
	tk.AddCommand(taskUpdateCmd())
	tk.AddCommand(taskDeleteCmd())
	return tk
}

func taskListCmd() *cobra.Command {
	var p query.Params
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Parse(p)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListTasks(ctx, q)
				if err != nil {
					return err
				}
				return printResult(res, taskColumns)
			})
		},
	}
	listFlags(cmd, &p)
	return cmd
}

func taskGetCmd() *cobra.Command {
	var sel string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := query.ParseSelect(sel)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				doc, err := a.Engine.SelectTask(ctx, args[0], proj)
				if err != nil {
					return err
				}
				return printDocument(doc)
			})
		},
	}
	cmd.Flags().StringVar(&sel, "select", "", "JSON projection")
	return cmd
}

func bindTaskFlags(cmd *cobra.Command, in *engine.TaskInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "task name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Deadline, "deadline", "", "deadline (RFC 3339, YYYY-MM-DD or unix milliseconds)")
	cmd.Flags().BoolVar(&in.Completed, "completed", false, "mark completed")
	cmd.Flags().StringVar(&in.AssignedUser, "assigned-user", "", "id of the user to assign")
}

func taskCreateCmd() *cobra.Command {
	var in engine.TaskInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	bindTaskFlags(cmd, &in)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var in engine.TaskInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a task",
		Long:  "Every field is replaced: flags left out take their defaults, so an update without --assigned-user unassigns the task.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTask(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	bindTaskFlags(cmd, &in)
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.DeleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Deadline", "Completed", "Assigned"})
	tw.AppendRow(table.Row{t.ID, t.Name, t.Deadline.Format("2006-01-02 15:04"), t.Completed, t.AssignedUserName})
	tw.Render()
	return nil
}
