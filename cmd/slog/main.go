package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"servicelog/internal/app"
	"servicelog/internal/config"
	"servicelog/internal/db"
	"servicelog/internal/domain"
	"servicelog/internal/engine"
	"servicelog/internal/migrate"
	"servicelog/internal/server"
	"servicelog/internal/store"
	"servicelog/internal/view"
)

var rootCmd = &cobra.Command{
	Use:   "slog",
	Short: "Service Log CLI",
	Long: `Service Log tracks billable peer-support services from plan to verification.
Core concepts:
- Workspace: your .servicelog directory holding the database; servicelog.yml names the organization.
- Service plan: one planned service; statuses go draft -> planned -> approved -> completed -> verified.
- Peer: plans and delivers services, owns their drafts.
- Supervisor: approves planned services, requests changes, verifies delivered ones.
- Audit trail: append-only diary of every decision, view with 'slog plan history'.`,
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
	viper.SetEnvPrefix("SERVICELOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "peer", "actor role (peer|supervisor)")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

type cliEnv struct {
	Engine engine.Engine
	View   view.View
	Config *config.Config
	OrgID  string
}

func (e cliEnv) actor() engine.Actor {
	return engine.Actor{
		OrganizationID: e.OrgID,
		ID:             viper.GetString("actor-id"),
		Role:           domain.Role(viper.GetString("role")),
	}
}

func withEnv(ctx context.Context, fn func(ctx context.Context, env cliEnv) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	eng := engine.New(conn)
	orgID, cfg, err := app.ResolveOrg(ctx, workspace, viper.GetString("org"), eng.Store)
	if err != nil {
		return err
	}
	env := cliEnv{
		Engine: eng,
		View:   view.View{Store: eng.Store, Audit: eng.Audit},
		Config: cfg,
		OrgID:  orgID,
	}
	return fn(ctx, env)
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage the organization"}
	var id, name, tz string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create servicelog.yml and the organization record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.Default(id)
			if name != "" {
				cfg.Organization.Name = name
			}
			if tz != "" {
				cfg.Organization.Timezone = tz
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			content := config.GenerateDefault(id)
			if name != "" || tz != "" {
				raw, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				content = string(raw)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				fmt.Println("organization", env.OrgID, "ready at", db.Path(workspace))
				return nil
			})
		},
	}
	initCmd.Flags().StringVar(&id, "id", "", "organization id")
	initCmd.Flags().StringVar(&name, "name", "", "display name")
	initCmd.Flags().StringVar(&tz, "timezone", "", "reporting timezone (IANA)")
	org.AddCommand(initCmd)

	org.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				o, err := env.Engine.Store.GetOrg(ctx, env.OrgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})
	return org
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage organization members"}
	var actorID, displayName, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				if err := app.EnsureMember(ctx, env.Engine.Store, env.OrgID, actorID, displayName, domain.Role(role)); err != nil {
					return err
				}
				fmt.Println("member", actorID, "registered as", role)
				return nil
			})
		},
	}
	add.Flags().StringVar(&actorID, "actor", "", "actor id")
	add.Flags().StringVar(&displayName, "name", "", "display name")
	add.Flags().StringVar(&role, "member-role", "peer", "peer|supervisor")
	member.AddCommand(add)

	member.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				items, err := env.Engine.Store.ListActors(ctx, env.OrgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return member
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage service plans"}
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	plan.AddCommand(planActionCmd("submit", "Submit a draft plan for review",
		func(ctx context.Context, env cliEnv, planID, comment string) (any, error) {
			return env.Engine.Submit(ctx, env.actor(), planID)
		}))
	plan.AddCommand(planActionCmd("approve", "Approve a planned service",
		func(ctx context.Context, env cliEnv, planID, comment string) (any, error) {
			return env.Engine.Approve(ctx, env.actor(), planID, comment)
		}))
	plan.AddCommand(planActionCmd("comment", "Comment on a plan under review",
		func(ctx context.Context, env cliEnv, planID, comment string) (any, error) {
			return env.Engine.Comment(ctx, env.actor(), planID, comment)
		}))
	plan.AddCommand(planActionCmd("request-change", "Return a planned service to draft",
		func(ctx context.Context, env cliEnv, planID, comment string) (any, error) {
			return env.Engine.RequestChange(ctx, env.actor(), planID, comment)
		}))
	plan.AddCommand(planActionCmd("verify", "Verify a completed service",
		func(ctx context.Context, env cliEnv, planID, comment string) (any, error) {
			return env.Engine.Verify(ctx, env.actor(), planID, comment)
		}))
	plan.AddCommand(planCompleteCmd())
	plan.AddCommand(planCancelCmd())
	plan.AddCommand(planHistoryCmd())
	return plan
}

func planCreateCmd() *cobra.Command {
	var serviceType, date, at, setting, code, participant, lesson, goal, notes string
	var minutes int
	var schedule bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a service plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				p, err := env.Engine.CreatePlan(ctx, env.actor(), engine.CreateOptions{
					ServiceType:    domain.ServiceType(serviceType),
					PlannedDate:    date,
					PlannedTime:    at,
					PlannedMinutes: minutes,
					Setting:        domain.Setting(setting),
					ServiceCode:    code,
					ParticipantID:  participant,
					LessonID:       lesson,
					GoalID:         goal,
					PlanningNotes:  notes,
					Schedule:       schedule,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&serviceType, "type", "individual", "individual|group")
	cmd.Flags().StringVar(&date, "date", "", "planned date YYYY-MM-DD")
	cmd.Flags().StringVar(&at, "time", "", "planned time HH:MM")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "planned duration in minutes")
	cmd.Flags().StringVar(&setting, "setting", "", "outpatient|community|telehealth|home|residential")
	cmd.Flags().StringVar(&code, "code", "", "service code")
	cmd.Flags().StringVar(&participant, "participant", "", "participant id")
	cmd.Flags().StringVar(&lesson, "lesson", "", "lesson id")
	cmd.Flags().StringVar(&goal, "goal", "", "goal id")
	cmd.Flags().StringVar(&notes, "notes", "", "planning notes")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "create directly in planned")
	return cmd
}

func planListCmd() *cobra.Command {
	var viewName, status, participant string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List service plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				f := store.ListFilter{
					View:          viewName,
					Status:        domain.Status(status),
					ParticipantID: participant,
				}
				if mine {
					f.CreatedBy = viper.GetString("actor-id")
				}
				items, err := env.Engine.Store.ListPlans(ctx, env.OrgID, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&viewName, "view", "", "upcoming|completed|review|all")
	cmd.Flags().StringVar(&status, "status", "", "exact status filter")
	cmd.Flags().StringVar(&participant, "participant", "", "participant id filter")
	cmd.Flags().BoolVar(&mine, "mine", false, "only plans created by --actor-id")
	return cmd
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a service plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				p, err := env.Engine.Store.GetPlan(ctx, env.OrgID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func planActionCmd(use, short string, fn func(ctx context.Context, env cliEnv, planID, comment string) (any, error)) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <plan-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				out, err := fn(ctx, env, args[0], comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	return cmd
}

func planCompleteCmd() *cobra.Command {
	var minutes, attendance int
	var asPlanned bool
	var deviation string
	cmd := &cobra.Command{
		Use:   "complete <plan-id>",
		Short: "Record delivery of a planned or approved service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				p, err := env.Engine.Complete(ctx, env.actor(), args[0], engine.CompleteOptions{
					ActualMinutes:      minutes,
					AttendanceCount:    attendance,
					DeliveredAsPlanned: asPlanned,
					DeviationNotes:     deviation,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "actual duration in minutes")
	cmd.Flags().IntVar(&attendance, "attendance", 1, "attendance count")
	cmd.Flags().BoolVar(&asPlanned, "as-planned", true, "delivered as planned")
	cmd.Flags().StringVar(&deviation, "deviation", "", "deviation notes (required when not as planned)")
	return cmd
}

func planCancelCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "cancel <plan-id>",
		Short: "Cancel a draft or planned service plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				if err := env.Engine.Cancel(ctx, env.actor(), args[0], comment); err != nil {
					return err
				}
				fmt.Println("plan", args[0], "cancelled")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "reason")
	return cmd
}

func planHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <plan-id>",
		Short: "Audit trail for a plan, in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				events, err := env.Engine.History(ctx, env.OrgID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Peer dashboard for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				d, err := env.View.PeerDashboard(ctx, env.OrgID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Supervisor review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				items, err := env.View.ReviewQueue(ctx, env.OrgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actorID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				plaintext, rec, err := env.Engine.Store.MintAPIKey(ctx, env.OrgID, actorID, name)
				if err != nil {
					return err
				}
				fmt.Println("key id:", rec.ID)
				fmt.Println("key (save it now, it is not stored):", plaintext)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	create.Flags().StringVar(&name, "name", "", "key label")
	key.AddCommand(create)

	key.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				items, err := env.Engine.Store.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				return env.Engine.Store.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	key.AddCommand(del)
	return key
}

func serveCmd() *cobra.Command {
	var addr, jwtSecret string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				secret := jwtSecret
				if secret == "" {
					secret = env.Config.Auth.JWTSecret
				}
				handler, err := server.New(server.Config{
					Engine: env.Engine,
					View:   env.View,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						AllowLegacyActorHeader: allowLegacy || env.Config.Auth.AllowLegacyActorHeader,
					},
				})
				if err != nil {
					return err
				}
				fmt.Println("listening on", addr)
				return http.ListenAndServe(addr, handler)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8484", "listen address")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "JWT signing secret")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth")
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	switch items := v.(type) {
	case []domain.ServicePlan:
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Status", "Type", "Date", "Minutes", "Setting", "Created By"})
		for _, p := range items {
			t.AppendRow(table.Row{p.ID, p.Status, p.ServiceType, p.PlannedDate, p.PlannedMinutes, p.Setting, p.CreatedBy})
		}
		t.Render()
		return nil
	case []domain.AuditEvent:
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Action", "Actor", "Role", "At", "Comment"})
		for _, e := range items {
			t.AppendRow(table.Row{e.ID, e.Action, e.ActorID, e.ActorRole, e.OccurredAt, derefOr(e.Comment, "")})
		}
		t.Render()
		return nil
	case []domain.ReviewItem:
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Status", "Date", "Peer", "Overdue", "Comments"})
		for _, it := range items {
			t.AppendRow(table.Row{it.Plan.ID, it.Plan.Status, it.Plan.PlannedDate, it.PeerName, it.Overdue, strings.Join(it.Comments, "; ")})
		}
		t.Render()
		return nil
	case []domain.Actor:
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Role"})
		for _, a := range items {
			t.AppendRow(table.Row{a.ID, a.DisplayName, a.Role})
		}
		t.Render()
		return nil
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
