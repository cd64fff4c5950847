package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"starbase/internal/config"
	"starbase/internal/db"
	"starbase/internal/engine"
	"starbase/internal/migrate"
	"starbase/internal/repo"
	"starbase/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sb",
	Short: "Starbase CLI",
	Long: `Starbase tracks people and their astronaut duty assignments.
Core concepts:
- Person: anyone on the roster, identified by a unique name.
- Astronaut detail: the person's current duty title, rank, and career span.
- Astronaut duty: one row per assignment; the open row has no end date.
- RETIRED: a sentinel duty title that closes the person's career.
- Event log: diary of changes, view with 'sb log tail'.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STARBASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(personCmd())
	rootCmd.AddCommand(dutyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
}

func personCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "person",
		Short: "Manage persons",
	}
	p.AddCommand(personCreateCmd())
	p.AddCommand(personListCmd())
	p.AddCommand(personShowCmd())
	return p
}

func personCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create person",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePerson(ctx, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "person name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func personListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persons with their current career status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPersonAstronauts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Rank", "Duty Title", "Career Start", "Career End"})
				for _, pa := range items {
					tw.AppendRow(table.Row{
						pa.PersonID,
						pa.Name,
						pa.CurrentRank,
						pa.CurrentDutyTitle,
						derefString(pa.CareerStartDate),
						derefString(pa.CareerEndDate),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func personShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a person by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				pa, err := r.GetPersonAstronautByName(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(pa)
			})
		},
	}
	return cmd
}

func dutyCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "duty",
		Short: "Manage duty assignments",
		Long:  "Assignments close the previous duty the day before the new start date. Assigning the title RETIRED ends the person's career.",
	}
	d.AddCommand(dutyAssignCmd())
	d.AddCommand(dutyHistoryCmd())
	return d
}

func dutyAssignCmd() *cobra.Command {
	var name, rank, title, start string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a duty to a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AssignDuty(ctx, engine.AssignDutyRequest{
					Name:          name,
					Rank:          rank,
					DutyTitle:     title,
					DutyStartDate: start,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if !res.Success {
					return errors.New(res.Message)
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "person name")
	cmd.Flags().StringVar(&rank, "rank", "", "rank")
	cmd.Flags().StringVar(&title, "title", "", "duty title")
	cmd.Flags().StringVar(&start, "start", "", "duty start date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("rank")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func dutyHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show a person's duty history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				pa, err := r.GetPersonAstronautByName(ctx, args[0])
				if err != nil {
					return err
				}
				duties, err := r.ListDutiesByPerson(ctx, pa.PersonID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"person": pa, "duties": duties})
				}
				fmt.Printf("%s (%s %s)\n", pa.Name, pa.CurrentRank, pa.CurrentDutyTitle)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Rank", "Duty Title", "Start", "End"})
				for _, d := range duties {
					tw.AppendRow(table.Row{d.ID, d.Rank, string(d.DutyTitle), d.DutyStartDate, derefString(d.DutyEndDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, 0)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SeedDemo(ctx); err != nil {
					return err
				}
				fmt.Println("seeded")
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("STARBASE_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:        cfg.Auth.JWTSecret,
					AllowActorHeader: cfg.Auth.AllowActorHeader,
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(e, cfg.Webhooks)
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Starbase API on http://%s%s (OpenAPI at %s/openapi.json)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8471", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, err := openWorkspaceDB()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, engine.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openWorkspaceDB()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func openWorkspaceDB() (*sql.DB, error) {
	workspace := viper.GetString("workspace")
	c, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
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

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
