package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskroster/internal/app"
	"taskroster/internal/config"
	"taskroster/internal/db"
	"taskroster/internal/query"
	"taskroster/internal/repo"
	"taskroster/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskroster",
	Short: "taskroster CLI",
	Long: `taskroster tracks tasks and the users they are assigned to.
- Task: a named work item with a deadline, a completion flag and at most one assigned user.
- User: a person with a unique email and the set of tasks pending for them.
- Pending: a task is pending for its user while it is assigned and not completed; both sides are kept in step on every change.
- Workspace: the directory holding taskroster.yml, an optional .env and the .taskroster database.
- Event log: every change is recorded, view it with 'taskroster log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig loads the workspace .env before viper reads the environment, so
// TASKROSTER_* values can live next to taskroster.yml.
func initConfig() {
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", envFile, err)
		}
	}
	viper.SetEnvPrefix("TASKROSTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "log file, rotated when set")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads taskroster.yml and applies flag and environment
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("base-path"); v != "" {
		cfg.Server.BasePath = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetString("log-file"); v != "" {
		cfg.Log.File = v
	}
	if viper.IsSet("task-default-limit") {
		cfg.Query.TaskDefaultLimit = viper.GetInt("task-default-limit")
	}
	if viper.IsSet("user-default-limit") {
		cfg.Query.UserDefaultLimit = viper.GetInt("user-default-limit")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "taskroster.yml sets the listen address, list defaults (tasks 100, users unbounded) and logging. TASKROSTER_* variables and flags override it.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskroster.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Write(viper.GetString("workspace"), force)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"path": path})
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: a.Config.Server.BasePath, Logger: a.Logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving", slog.String("addr", a.Config.Server.Addr), slog.String("base_path", a.Config.Server.BasePath))
				fmt.Printf("Serving taskroster API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
					a.Config.Server.Addr, a.Config.Server.BasePath, a.Config.Server.BasePath, a.Config.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from taskroster.yml)")
	cmd.Flags().String("base-path", "", "API base path (default from taskroster.yml)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + " " + e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind (task, user)")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that task owners and pending sets agree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				violations, err := a.Engine.CheckConsistency(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(map[string]any{"ok": len(violations) == 0, "violations": violations}); err != nil {
						return err
					}
				} else if len(violations) == 0 {
					fmt.Println("ok: every task owner and pending set agree")
				} else {
					tw := newTable()
					tw.AppendHeader(table.Row{"Task", "User", "Rule", "Detail"})
					for _, v := range violations {
						tw.AppendRow(table.Row{v.TaskID, v.UserID, v.Rule, v.Detail})
					}
					tw.Render()
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d inconsistencies found", len(violations))
				}
				return nil
			})
		},
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Config: cfg, LogOutput: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// listFlags binds the list query parameters onto a command.
func listFlags(cmd *cobra.Command, p *query.Params) {
	cmd.Flags().StringVar(&p.Where, "where", "", `JSON filter, e.g. '{"completed":false}'`)
	cmd.Flags().StringVar(&p.Sort, "sort", "", `JSON sort, e.g. '{"deadline":1}'`)
	cmd.Flags().StringVar(&p.Select, "select", "", `JSON projection, e.g. '{"name":1}'`)
	cmd.Flags().StringVar(&p.Skip, "skip", "", "number of records to skip")
	cmd.Flags().StringVar(&p.Limit, "limit", "", "maximum number of records (0 for no limit)")
	cmd.Flags().StringVar(&p.Count, "count", "", "true to print only the number of matches")
}

// printResult renders a list result. Columns follow preferred, then any
// other field in name order.
func printResult(res query.Result, preferred []string) error {
	if res.CountOnly {
		if viper.GetBool("json") {
			return printJSON(map[string]int{"count": res.Count})
		}
		fmt.Println(res.Count)
		return nil
	}
	if viper.GetBool("json") {
		if res.Items == nil {
			return printJSON([]query.Document{})
		}
		return printJSON(res.Items)
	}
	present := map[string]bool{}
	for _, doc := range res.Items {
		for k := range doc {
			present[k] = true
		}
	}
	var cols []string
	for _, k := range preferred {
		if present[k] {
			cols = append(cols, k)
			delete(present, k)
		}
	}
	var rest []string
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	tw := newTable()
	header := table.Row{}
	for _, c := range cols {
		header = append(header, c)
	}
	tw.AppendHeader(header)
	for _, doc := range res.Items {
		row := table.Row{}
		for _, c := range cols {
			row = append(row, cell(doc[c]))
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return x
	}
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

// printDocument renders a single projected record as a field/value table.
func printDocument(doc query.Document) error {
	if viper.GetBool("json") {
		return printJSON(doc)
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable()
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, cell(doc[k])})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
