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
	"dayplan/internal/repo"
)

func dateArg(e engine.Engine, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return e.Today().String()
}

func agendaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agenda [date]",
		Short: "Show the agenda of a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Agenda(ctx, dateArg(e, args))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				renderAgenda(a)
				return nil
			})
		},
	}
}

func renderAgenda(a recurrence.Agenda) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(a.Date)
	tw.AppendHeader(table.Row{"Section", "Slot", "Title", "Estimate", "ID"})
	add := func(section string, items []recurrence.Item) {
		for _, it := range items {
			id := it.ID
			if it.Virtual {
				id += " (series)"
			}
			tw.AppendRow(table.Row{section, slot(it.Task), it.Title, estimate(it.Task), id})
		}
	}
	add("timed", a.Timed)
	add("all-day", a.AllDay)
	add("due", a.DueToday)
	add("done", a.Done)
	tw.Render()
}

func weekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week [date]",
		Short: "Show the week containing a date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Week(ctx, dateArg(e, args))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Week of " + w.Start)
				tw.AppendHeader(table.Row{"Date", "Timed", "All-day", "Due", "Done"})
				for _, d := range w.Days {
					tw.AppendRow(table.Row{d.Date, len(d.Timed), len(d.AllDay), len(d.DueToday), len(d.Done)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func backlogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlog",
		Short: "List open tasks without a time slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Backlog(ctx)
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
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "Export the calendar"}
	var from, to, out string
	ics := &cobra.Command{
		Use:   "ics",
		Short: "Write a date range as iCalendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if from == "" {
					from = e.Today().String()
				}
				if to == "" {
					d, err := recurrence.ParseDate(from)
					if err != nil {
						return err
					}
					to = d.AddDays(30).String()
				}
				cal, err := e.ExportICS(ctx, from, to)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = fmt.Fprint(os.Stdout, cal)
					return err
				}
				if err := os.WriteFile(out, []byte(cal), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	ics.Flags().StringVar(&from, "from", "", "first date (default today)")
	ics.Flags().StringVar(&to, "to", "", "last date (default from+30 days)")
	ics.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.AddCommand(ics)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter (task, group, agenda)")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}
