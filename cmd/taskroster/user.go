package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskroster/internal/app"
	"taskroster/internal/domain"
	"taskroster/internal/engine"
	"taskroster/internal/query"
)

var userColumns = []string{"id", "name", "email", "pendingTasks", "dateCreated"}

func userCmd() *cobra.Command {
	us := &cobra.Command{Use: "user", Short: "Manage users"}
	us.AddCommand(userListCmd())
	us.AddCommand(userGetCmd())
	us.AddCommand(userCreateCmd())
	us.AddCommand(userUpdateCmd())
	us.AddCommand(userDeleteCmd())
	return us
}

func userListCmd() *cobra.Command {
	var p query.Params
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Parse(p)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListUsers(ctx, q)
				if err != nil {
					return err
				}
				return printResult(res, userColumns)
			})
		},
	}
	listFlags(cmd, &p)
	return cmd
}

func userGetCmd() *cobra.Command {
	var sel string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := query.ParseSelect(sel)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				doc, err := a.Engine.SelectUser(ctx, args[0], proj)
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

func bindUserFlags(cmd *cobra.Command, in *engine.UserInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "user name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&in.PendingTasks, "pending", nil, "task ids the user should own (repeatable or comma separated)")
}

func userCreateCmd() *cobra.Command {
	var in engine.UserInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Long:  "Tasks passed with --pending are transferred to the new user from their current owners.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
	bindUserFlags(cmd, &in)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var in engine.UserInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a user",
		Long:  "Tasks left out of --pending are unassigned; new ones are transferred to the user.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.UpdateUser(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
	bindUserFlags(cmd, &in)
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user and unassign its pending tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.DeleteUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
}

func printUser(u domain.User) error {
	if viper.GetBool("json") {
		return printJSON(u)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Email", "Pending"})
	tw.AppendRow(table.Row{u.ID, u.Name, u.Email, strings.Join(u.PendingTasks, ",")})
	tw.Render()
	return nil
}
