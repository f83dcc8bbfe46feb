package main

import (
	"context"
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

	"handover/internal/app"
	"handover/internal/db"
	"handover/internal/engine"
	"handover/internal/integrations"
	"handover/internal/migrate"
	"handover/internal/schema"
	"handover/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hov",
	Short: "Handover CLI",
	Long: `Handover tracks the sales-to-launch handover of client projects.
Each project carries two checklists (sales and launch) whose shape comes
from a schema stored in the database. Fields can be flagged not relevant,
integration selections gate on their catalog requirements, and launch
data is tagged with app versions. Progress, reports and the version
history all derive from the stored documents.`,
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
	viper.SetEnvPrefix("HANDOVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the only project)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(fieldCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, client string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, id, name, client, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Client", "Status", "Version", "Overall"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Client, p.Status, p.Version, fmt.Sprintf("%d%%", p.Progress.Overall)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Update project status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.UpdateProjectStatus(ctx, projectID, status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "new status (draft, in_handover, launched, archived)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return e.DeleteProject(ctx, projectID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func fieldCmd() *cobra.Command {
	field := &cobra.Command{
		Use:   "field",
		Short: "Work with checklist fields",
		Long:  "Fields are addressed by id, or group.sub for fields inside a group. Every write recomputes progress.",
	}
	field.AddCommand(fieldSetCmd())
	field.AddCommand(fieldNotRelevantCmd())
	field.AddCommand(fieldRequirementCmd())
	field.AddCommand(fieldSelectionMetaCmd())
	return field
}

func fieldSelectionMetaCmd() *cobra.Command {
	var checklist, integration, status string
	var version int
	cmd := &cobra.Command{
		Use:   "selection-meta <field>",
		Short: "Tag a selected integration with status or version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" && version <= 0 {
				return fmt.Errorf("--status or --version required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.SetSelectionMeta(ctx, projectID, checklist, args[0],
					integration, status, version, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Progress)
			})
		},
	}
	cmd.Flags().StringVar(&checklist, "checklist", "launch", "checklist (sales or launch)")
	cmd.Flags().StringVar(&integration, "integration", "", "integration id")
	cmd.Flags().StringVar(&status, "status", "", "workflow status tag")
	cmd.Flags().IntVar(&version, "version", 0, "version tag")
	_ = cmd.MarkFlagRequired("integration")
	return cmd
}

func fieldSetCmd() *cobra.Command {
	var checklist, value, valueJSON string
	cmd := &cobra.Command{
		Use:   "set <field>",
		Short: "Set a field value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			switch {
			case valueJSON != "":
				if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
					return fmt.Errorf("invalid --value-json: %w", err)
				}
			case value == "true" || value == "false":
				v = value == "true"
			default:
				v = value
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.SetFieldValue(ctx, projectID, checklist, args[0], v, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Progress)
			})
		},
	}
	cmd.Flags().StringVar(&checklist, "checklist", "sales", "checklist (sales or launch)")
	cmd.Flags().StringVar(&value, "value", "", "plain value; 'true'/'false' become booleans")
	cmd.Flags().StringVar(&valueJSON, "value-json", "", "structured value as JSON (lists, tagged items)")
	return cmd
}

func fieldNotRelevantCmd() *cobra.Command {
	var checklist string
	var unset bool
	cmd := &cobra.Command{
		Use:   "not-relevant <field>",
		Short: "Flag a field as not relevant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.SetNotRelevant(ctx, projectID, checklist, args[0], !unset, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Progress)
			})
		},
	}
	cmd.Flags().StringVar(&checklist, "checklist", "sales", "checklist (sales or launch)")
	cmd.Flags().BoolVar(&unset, "unset", false, "clear the flag instead")
	return cmd
}

func fieldRequirementCmd() *cobra.Command {
	var checklist, integration, requirement string
	var uncheck bool
	cmd := &cobra.Command{
		Use:   "requirement <field>",
		Short: "Check off an integration requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.SetRequirementStatus(ctx, projectID, checklist, args[0],
					integration, requirement, !uncheck, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Progress)
			})
		},
	}
	cmd.Flags().StringVar(&checklist, "checklist", "launch", "checklist (sales or launch)")
	cmd.Flags().StringVar(&integration, "integration", "", "integration id")
	cmd.Flags().StringVar(&requirement, "requirement", "", "requirement label")
	cmd.Flags().BoolVar(&uncheck, "uncheck", false, "uncheck instead")
	_ = cmd.MarkFlagRequired("integration")
	_ = cmd.MarkFlagRequired("requirement")
	return cmd
}

func progressCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Compute checklist progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				if save {
					p, err := e.RecomputeAndSave(ctx, projectID, viper.GetString("actor-id"))
					if err != nil {
						return err
					}
					return printJSONOrTable(p)
				}
				p, err := e.Progress(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist the recomputed percentages")
	return cmd
}

func versionCmd() *cobra.Command {
	ver := &cobra.Command{
		Use:   "version",
		Short: "Manage app version history",
	}
	ver.AddCommand(versionListCmd())
	ver.AddCommand(versionAdvanceCmd())
	ver.AddCommand(versionDeleteCmd())
	ver.AddCommand(versionViewCmd())
	return ver
}

func versionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				list, err := e.Versions(ctx, projectID)
				if err != nil {
					return err
				}
				p, err := e.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"current": p.Version, "versions": list})
			})
		},
	}
	return cmd
}

func versionAdvanceCmd() *cobra.Command {
	var to int
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance the current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.AdvanceVersion(ctx, projectID, to, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"current": p.Version, "versions": p.VersionHistory})
			})
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "target version (0 means current+1)")
	return cmd
}

func versionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <version>",
		Short: "Delete a version from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target int
			if _, err := fmt.Sscanf(args[0], "%d", &target); err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.DeleteVersion(ctx, projectID, target, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"current": p.Version, "versions": p.VersionHistory})
			})
		},
	}
	return cmd
}

func versionViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <version>",
		Short: "Show launch data for one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target int
			if _, err := fmt.Sscanf(args[0], "%d", &target); err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.VersionView(ctx, projectID, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	var email bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the handover report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				r, err := e.Report(ctx, projectID)
				if err != nil {
					return err
				}
				var out string
				if email {
					out, err = r.EmailDraft()
				} else {
					out, err = r.Markdown()
				}
				if err != nil {
					return err
				}
				if email && out == "" {
					fmt.Println("nothing missing; no email draft needed")
					return nil
				}
				fmt.Println(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&email, "email", false, "render the missing-information email draft instead")
	return cmd
}

func schemaCmd() *cobra.Command {
	sc := &cobra.Command{
		Use:   "schema",
		Short: "Manage the checklist schema",
	}
	sc.AddCommand(schemaShowCmd())
	sc.AddCommand(schemaSetCmd())
	sc.AddCommand(schemaValidateCmd())
	return sc
}

func schemaValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a schema file, or the stored schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filePath != "" {
				_, err = schema.FromFile(filePath)
			} else {
				err = withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					cfg, cerr := e.ChecklistConfig(ctx)
					if cerr != nil {
						return cerr
					}
					return cfg.Validate()
				})
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("schema OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "schema file to validate (defaults to the stored schema)")
	return cmd
}

func schemaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active checklist schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := e.ChecklistConfig(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	return cmd
}

func schemaSetCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the checklist schema from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := schema.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.PutChecklistConfig(ctx, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to schema file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the integrations catalog",
	}
	cat.AddCommand(catalogShowCmd())
	cat.AddCommand(catalogSetCmd())
	return cat
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the integrations catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cat, err := e.Catalog(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cat)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Requirements"})
				for _, r := range cat {
					tw.AppendRow(table.Row{r.ID, r.Name, strings.Join(r.Requirements, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func catalogSetCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the integrations catalog from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := integrations.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.PutCatalog(ctx, cat, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cat)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to catalog file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	log.AddCommand(logFollowCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, fieldID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, projectID, evtType, fieldID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&fieldID, "field", "", "field id filter")
	return cmd
}

func logFollowCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Follow new events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				cursor, err := e.Repo.LatestEventID(ctx, projectID)
				if err != nil {
					return err
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					events, err := e.Repo.EventsAfter(ctx, 100, cursor, projectID)
					if err != nil {
						return err
					}
					for _, evt := range events {
						fmt.Printf("%s %s %s %s\n", evt.TS, evt.Type, evt.FieldID, evt.ActorID)
						cursor = evt.ID
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Handover API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withProject(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		projectID, err := app.ResolveProject(ctx, viper.GetString("project"), e.Repo)
		if err != nil {
			return err
		}
		return fn(ctx, e, projectID)
	})
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
