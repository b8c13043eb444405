package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayplan/internal/app"
	"dayplan/internal/config"
	"dayplan/internal/db"
	"dayplan/internal/engine"
	"dayplan/internal/log"
	"dayplan/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "dp",
	Short: "dayplan CLI",
	Long: `dayplan keeps a backlog of tasks and places them on a day/week calendar.
Core concepts:
- Workspace: a directory with dayplan.yml and the .dayplan/ SQLite database.
- Tasks: a title plus optional date, time slot (or all-day), estimate, points and group.
- Backlog: open tasks without a time slot.
- Recurrence: a task with a rule (daily, weekdays, weekly, monthly) is a series master.
  Its occurrences are computed per day and are never stored.
- Exceptions: editing, moving, completing or cancelling one occurrence stores a
  single exception row for that date; the rest of the series is untouched.
- Event log: every change is recorded, view it with 'dp log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyLogLevel(); err != nil {
			return err
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DAYPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", engine.DefaultActor, "actor recorded on events")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, error); overrides dayplan.yml")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(recurCmd())
	rootCmd.AddCommand(occurrenceCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(backlogCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and default dayplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path, err := app.InitConfig(workspace, false)
			if err != nil && !strings.Contains(err.Error(), "already exists") {
				return err
			}
			ws, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer ws.Close()
			version, err := migrate.Version(cmd.Context(), ws.DB)
			if err != nil {
				return err
			}
			fmt.Printf("Workspace ready: %s (schema v%d, config %s)\n", db.Path(workspace), version, path)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage dayplan.yml"}
	var force bool
	initSub := &cobra.Command{
		Use:   "init",
		Short: "Write the default dayplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.InitConfig(viper.GetString("workspace"), force)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initSub.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initSub)
	cfg.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one key of dayplan.yml, e.g. digest.at 06:30",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			c, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if err := c.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Write(workspace, c); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	})
	return cfg
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := applyLogLevel(); err != nil {
		return err
	}
	return fn(ctx, ws.Engine())
}

// applyLogLevel lets --log-level / DAYPLAN_LOG_LEVEL win over dayplan.yml.
func applyLogLevel() error {
	lvl := viper.GetString("log-level")
	if lvl == "" {
		return nil
	}
	parsed, err := log.ParseLevel(lvl)
	if err != nil {
		return err
	}
	log.SetLevel(parsed)
	return nil
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
