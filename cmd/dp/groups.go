package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayplan/internal/engine"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "group", Short: "Manage task groups"}
	cmd.AddCommand(groupListCmd())
	cmd.AddCommand(groupCreateCmd())
	cmd.AddCommand(groupUpdateCmd())
	cmd.AddCommand(groupDeleteCmd())
	return cmd
}

func groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				groups, err := e.ListGroups(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Color", "Position"})
				for _, g := range groups {
					tw.AppendRow(table.Row{g.ID, g.Name, g.Color, g.Position})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func groupCreateCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateGroup(ctx, name, color, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&color, "color", "#3b82f6", "hex color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func groupUpdateCmd() *cobra.Command {
	var name, color string
	var position int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename, recolor or reorder a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u engine.GroupUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("color") {
				u.Color = &color
			}
			if cmd.Flags().Changed("position") {
				u.Position = &position
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.UpdateGroup(ctx, args[0], u, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&color, "color", "", "hex color")
	cmd.Flags().IntVar(&position, "position", 0, "position")
	return cmd
}

func groupDeleteCmd() *cobra.Command {
	var deleteTasks bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a group; its tasks are ungrouped unless --delete-tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteGroup(ctx, args[0], deleteTasks, actorID()); err != nil {
					return err
				}
				fmt.Printf("Deleted group %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deleteTasks, "delete-tasks", false, "delete the group's tasks too")
	return cmd
}
