package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayplan/internal/engine"
	"dayplan/internal/recurrence"
)

func recurCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "recur", Short: "Manage recurrence rules"}
	cmd.AddCommand(recurSetCmd())
	cmd.AddCommand(recurRemoveCmd())
	cmd.AddCommand(recurOptionsCmd())
	cmd.AddCommand(recurDescribeCmd())
	return cmd
}

func recurSetCmd() *cobra.Command {
	var opts engine.RecurrenceOptions
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Make a task recurring",
		Long: `Make a task recurring. --shape encodes the rule from the task's date
(daily, weekdays, weekly, monthly); --rule takes a raw rule instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Shape == "" && opts.Rule == "" {
				return fmt.Errorf("one of --shape or --rule is required")
			}
			opts.ID = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetRecurrence(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Shape, "shape", "", "none, daily, weekdays, weekly or monthly")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "raw rule, e.g. FREQ=MONTHLY;BYMONTHDAY=15")
	return cmd
}

func recurRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Stop a series; its exceptions are deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveRecurrence(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func recurOptionsCmd() *cobra.Command {
	var anchor string
	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the recurrence choices for an anchor date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := recurrence.ParseDate(anchor)
			if err != nil {
				return err
			}
			opts := recurrence.Options(d)
			if viper.GetBool("json") {
				return printJSON(opts)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Shape", "Label", "Rule"})
			for _, o := range opts {
				tw.AppendRow(table.Row{o.Shape, o.Label, o.Rule})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&anchor, "anchor", "", "anchor date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func recurDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <rule>",
		Short: "Print the label of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(recurrence.Describe(args[0]))
			return nil
		},
	}
}

func occurrenceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "occurrence", Short: "Edit single occurrences or whole series"}
	cmd.AddCommand(occurrenceEditCmd())
	cmd.AddCommand(occurrenceCancelCmd())
	cmd.AddCommand(occurrenceUpdateAllCmd())
	return cmd
}

func occurrenceEditCmd() *cobra.Command {
	var ff fieldFlags
	cmd := &cobra.Command{
		Use:   "edit <master-id> <date>",
		Short: "Edit one occurrence; stores an exception for that date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ff.fields(cmd)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.EditOccurrence(ctx, args[0], args[1], f, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func occurrenceCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <master-id> <date>",
		Short: "Skip one occurrence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CancelOccurrence(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func occurrenceUpdateAllCmd() *cobra.Command {
	var ff fieldFlags
	cmd := &cobra.Command{
		Use:   "update-all <master-id>",
		Short: "Edit every occurrence of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ff.fields(cmd)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateSeries(ctx, args[0], f, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	ff.register(cmd)
	return cmd
}
