package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agora/internal/change"
	"agora/internal/config"
	"agora/internal/db"
	"agora/internal/domain"
	"agora/internal/engine"
	"agora/internal/migrate"
	"agora/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora CLI",
	Long: `Agora governs shared resources through permissioned actions.
Core concepts:
- Workspace: your .agora directory holding the database; settings live in agora.yml.
- Community: a group with members, owners and governors; every governed thing belongs to one.
- Action: a proposed change to a target; it resolves through the permission pipelines
  (foundational, specific, governing) and is implemented only when approved.
- Permission: who may take which change on a target, by actor, role or anyone.
- Condition: a gate (approval, vote, consensus, filters) a matched permission may impose;
  waiting actions resume once the condition settles.
- Container: a batch of actions that land together or not at all.
- Event log: diary of changes, view with 'agora log tail'.`,
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
	viper.SetEnvPrefix("AGORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("actor", 0, "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(communityCmd())
	rootCmd.AddCommand(actCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(containerCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(permissionCmd())
	rootCmd.AddCommand(conditionCmd())
	rootCmd.AddCommand(changesCmd())
	rootCmd.AddCommand(logCmd())
}

func communityCmd() *cobra.Command {
	comm := &cobra.Command{Use: "community", Short: "Manage communities"}
	comm.AddCommand(communityCreateCmd())
	comm.AddCommand(communityShowCmd())
	comm.AddCommand(communityListCmd())
	return comm
}

func communityCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a community with the actor as first owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				comm, err := e.CreateCommunity(ctx, name, viper.GetInt64("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(comm)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "community name")
	return cmd
}

func communityShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a community",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				comm, err := r.GetCommunity(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(comm)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "community id")
	return cmd
}

func communityListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCommunities(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Members", "Foundational", "Governing"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, len(c.Roles.Members), c.Foundational, c.Governing})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func actCmd() *cobra.Command {
	var kind, data, changeType string
	var id int64
	cmd := &cobra.Command{
		Use:   "act",
		Short: "Take an action on a target",
		Long:  "Propose a change on a target. The permission pipelines decide whether it is implemented, rejected or left waiting on a condition.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := change.Decode(changeType, data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				act, err := e.Take(ctx, viper.GetInt64("actor"), domain.Ref{Kind: kind, ID: id}, ch)
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "target-kind", "", "target kind (community|resource|permission|condition)")
	cmd.Flags().Int64Var(&id, "target-id", 0, "target id")
	cmd.Flags().StringVar(&changeType, "change", "", "change type id")
	cmd.Flags().StringVar(&data, "data", "", "change payload as JSON")
	return cmd
}

func actionCmd() *cobra.Command {
	act := &cobra.Command{Use: "action", Short: "Inspect and retry actions"}
	act.AddCommand(actionListCmd())
	act.AddCommand(actionShowCmd())
	act.AddCommand(actionRetryCmd())
	return act
}

func actionListCmd() *cobra.Command {
	var kind, status, changeType string
	var id, actor int64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActions(ctx, repo.ActionFilters{
					Target:     domain.Ref{Kind: kind, ID: id},
					Status:     status,
					Actor:      actor,
					ChangeType: changeType,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Target", "Change", "Status", "Log"})
				for _, a := range items {
					target := fmt.Sprintf("%s/%d", a.Target.Kind, a.Target.ID)
					tw.AppendRow(table.Row{a.ID, a.Actor, target, a.ChangeType, a.Status, a.Resolution.LastLog()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "target-kind", "", "filter by target kind")
	cmd.Flags().Int64Var(&id, "target-id", 0, "filter by target id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().Int64Var(&actor, "by", 0, "filter by actor")
	cmd.Flags().StringVar(&changeType, "change", "", "filter by change type")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func actionShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an action with its resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				act, err := r.GetAction(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "action id")
	return cmd
}

func actionRetryCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-resolve a waiting or rejected action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				act, err := e.RetryAction(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "action id")
	return cmd
}

// containerItemSpec is the JSON shape 'container create --items' accepts.
type containerItemSpec struct {
	Target     domain.Ref      `json:"target"`
	ChangeType string          `json:"change_type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func containerCmd() *cobra.Command {
	cont := &cobra.Command{Use: "container", Short: "Batch actions that land together"}
	cont.AddCommand(containerCreateCmd())
	cont.AddCommand(containerProcessCmd())
	cont.AddCommand(containerShowCmd())
	return cont
}

func containerCreateCmd() *cobra.Command {
	var items string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a container of draft actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var specs []containerItemSpec
			if err := json.Unmarshal([]byte(items), &specs); err != nil {
				return fmt.Errorf("parse --items: %w", err)
			}
			built := make([]engine.ContainerItem, 0, len(specs))
			for _, s := range specs {
				ch, err := change.Decode(s.ChangeType, string(s.Data))
				if err != nil {
					return err
				}
				built = append(built, engine.ContainerItem{Target: s.Target, Change: ch})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cont, err := e.CreateContainer(ctx, viper.GetInt64("actor"), built)
				if err != nil {
					return err
				}
				return printJSONOrTable(cont)
			})
		},
	}
	cmd.Flags().StringVar(&items, "items", "", `actions as JSON, e.g. [{"target":{"kind":"community","id":1},"change_type":"community.add_members","data":{"members":[2]}}]`)
	return cmd
}

func containerProcessCmd() *cobra.Command {
	var key string
	var provisional bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a container, provisionally or for real",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					cont domain.Container
					err  error
				)
				if provisional {
					cont, err = e.ProcessProvisionally(ctx, key)
				} else {
					cont, err = e.ProcessPermanently(ctx, key)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(cont)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "container key")
	cmd.Flags().BoolVar(&provisional, "provisional", false, "resolve without implementing")
	return cmd
}

func containerShowCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cont, err := r.GetContainerByKey(ctx, key)
				if err != nil {
					return err
				}
				return printJSONOrTable(cont)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "container key")
	return cmd
}

func resourceCmd() *cobra.Command {
	res := &cobra.Command{Use: "resource", Short: "Inspect resources"}
	var communityID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a community's resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListResources(ctx, communityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Items", "Foundational", "Governing"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, strings.Join(it.Items, ", "), it.Foundational, it.Governing})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().Int64Var(&communityID, "community", 0, "community id")
	res.AddCommand(list)
	return res
}

func permissionCmd() *cobra.Command {
	p := &cobra.Command{Use: "permission", Short: "Inspect permissions"}
	var kind string
	var id int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List permissions set on a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPermissionsOn(ctx, domain.Ref{Kind: kind, ID: id})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Change", "Actors", "Roles", "Anyone", "Inverse", "Active"})
				for _, perm := range items {
					tw.AppendRow(table.Row{perm.ID, perm.ChangeType, perm.Actors, strings.Join(perm.Roles, ", "), perm.Anyone, perm.Inverse, perm.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "target-kind", "", "target kind")
	list.Flags().Int64Var(&id, "target-id", 0, "target id")
	p.AddCommand(list)
	return p
}

func conditionCmd() *cobra.Command {
	c := &cobra.Command{Use: "condition", Short: "Inspect condition instances"}
	var actionID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List condition instances gating an action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListInstancesForAction(ctx, actionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Action", "Type", "Source", "State"})
				for _, inst := range items {
					tw.AppendRow(table.Row{inst.ID, inst.ActionID, inst.ConditionType, inst.SourceID, inst.State})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().Int64Var(&actionID, "action", 0, "action id")
	list.MarkFlagRequired("action")
	c.AddCommand(list)
	return c
}

func changesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changes",
		Short: "List the known change types",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := change.Types()
			if viper.GetBool("json") {
				return printJSON(types)
			}
			for _, t := range types {
				fmt.Println(t)
			}
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	var communityID int64
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, limit, communityID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range items {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += "/" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.TS, ev.Type, entity, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "max rows")
	tail.Flags().Int64Var(&communityID, "community", 0, "filter by community")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	log.AddCommand(tail)
	return log
}

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
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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
