package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/reconcile"
	"dayplan/internal/recurrence"
	"dayplan/internal/repo"
)

// fieldFlags binds the editable task fields. Only flags set on the command
// line end up in Fields.
type fieldFlags struct {
	title       string
	description string
	points      int
	estimate    int
	group       string
	completed   bool
	date        string
	start       string
	end         string
	allDay      bool
}

func (ff *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.title, "title", "", "title")
	cmd.Flags().StringVar(&ff.description, "description", "", "description")
	cmd.Flags().IntVar(&ff.points, "points", 0, "story points (0 clears)")
	cmd.Flags().IntVar(&ff.estimate, "estimate", 0, "estimated minutes (0 clears)")
	cmd.Flags().StringVar(&ff.group, "group", "", "group id (empty clears)")
	cmd.Flags().BoolVar(&ff.completed, "completed", false, "completed")
	cmd.Flags().StringVar(&ff.date, "date", "", "scheduled date YYYY-MM-DD (empty clears)")
	cmd.Flags().StringVar(&ff.start, "start", "", "start time HH:MM")
	cmd.Flags().StringVar(&ff.end, "end", "", "end time HH:MM")
	cmd.Flags().BoolVar(&ff.allDay, "all-day", false, "all-day")
}

func (ff *fieldFlags) fields(cmd *cobra.Command) reconcile.Fields {
	var f reconcile.Fields
	changed := cmd.Flags().Changed
	if changed("title") {
		f.Title = &ff.title
	}
	if changed("description") {
		f.Description = &ff.description
	}
	if changed("points") {
		f.Points = &ff.points
	}
	if changed("estimate") {
		f.EstimatedMinutes = &ff.estimate
	}
	if changed("group") {
		f.GroupID = &ff.group
	}
	if changed("completed") {
		f.Completed = &ff.completed
	}
	if changed("date") {
		f.ScheduledDate = &ff.date
	}
	if changed("start") {
		f.ScheduledStart = &ff.start
	}
	if changed("end") {
		f.ScheduledEnd = &ff.end
	}
	if changed("all-day") {
		f.AllDay = &ff.allDay
	}
	return f
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskGetCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskToggleCmd())
	cmd.AddCommand(taskScheduleCmd())
	cmd.AddCommand(taskDescheduleCmd())
	cmd.AddCommand(taskCopyCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var ff fieldFlags
	var id, rule string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ff.fields(cmd)
			if cmd.Flags().Changed("rule") {
				f.RecurrenceRule = &rule
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{ID: id, Fields: f, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "task id (optional, random UUID if omitted)")
	cmd.Flags().StringVar(&rule, "rule", "", "recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO (needs --date)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var kind string
	var open, done bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored task rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Kind = domain.Kind(kind)
			switch {
			case open && done:
				return fmt.Errorf("--open and --done are exclusive")
			case open:
				v := false
				f.Completed = &v
			case done:
				v := true
				f.Completed = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.GroupID, "group", "", "group filter")
	cmd.Flags().StringVar(&kind, "kind", "", "regular, master, exception or cancellation")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "exceptions of a master")
	cmd.Flags().StringVar(&f.Date, "date", "", "scheduled date filter")
	cmd.Flags().BoolVar(&f.Unplaced, "unplaced", false, "only tasks without a time slot")
	cmd.Flags().BoolVar(&open, "open", false, "only open tasks")
	cmd.Flags().BoolVar(&done, "done", false, "only completed tasks")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func renderTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Date", "Slot", "Estimate", "Repeat", "Done"})
	for _, t := range tasks {
		repeat := ""
		if t.RecurrenceRule != nil {
			repeat = recurrence.Describe(*t.RecurrenceRule)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, deref(t.ScheduledDate), slot(t), estimate(t), repeat, check(t.Completed)})
	}
	tw.Render()
}

func slot(t domain.Task) string {
	switch {
	case t.AllDay:
		return "all-day"
	case t.ScheduledStart != nil:
		return *t.ScheduledStart + "-" + deref(t.ScheduledEnd)
	}
	return ""
}

func estimate(t domain.Task) string {
	if t.EstimatedMinutes == nil {
		return ""
	}
	return recurrence.FormatEstimate(*t.EstimatedMinutes)
}

func check(b bool) string {
	if b {
		return "x"
	}
	return ""
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var ff fieldFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task (for a master, the whole series)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ff.fields(cmd)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: args[0], Fields: f, ActorID: actorID()})
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

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task; deleting a master removes its exceptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func taskToggleCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle completion; with --date on a master, toggles that occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleTask(ctx, args[0], date, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "occurrence date YYYY-MM-DD")
	return cmd
}

func taskScheduleCmd() *cobra.Command {
	var opts engine.ScheduleOptions
	cmd := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Place a task on a day, optionally in a time slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ScheduleTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Date, "date", "", "date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start time HH:MM")
	cmd.Flags().StringVar(&opts.End, "end", "", "end time HH:MM (defaults to the estimate)")
	cmd.Flags().BoolVar(&opts.AllDay, "all-day", false, "all-day")
	cmd.Flags().StringVar(&opts.OccurrenceDate, "occurrence", "", "re-time only the occurrence of a master on this date (must equal --date)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func taskDescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deschedule <id>",
		Short: "Send a task back to the backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Deschedule(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskCopyCmd() *cobra.Command {
	var opts engine.CopyOptions
	cmd := &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy a task onto a new slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SourceID = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CopyTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Date, "date", "", "date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start time HH:MM")
	cmd.Flags().StringVar(&opts.End, "end", "", "end time HH:MM")
	cmd.Flags().BoolVar(&opts.AllDay, "all-day", false, "all-day")
	return cmd
}
