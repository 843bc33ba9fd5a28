package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/cache"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/clock"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/config"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "wps",
	Short: "Work-package status CLI",
	Long: `wps tracks work-package lanes through an append-only event log.
Every lane change is one immutable fact in the feature's log; any number of
agents and operators can append concurrently from separate checkouts, and
materialization folds the log into one deterministic snapshot.`,
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
	viper.SetEnvPrefix("WPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("root", "r", ".", "project root directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "actor identity (defaults to config)")
	rootCmd.PersistentFlags().Bool("force", false, "bypass the lane legality table")
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(materializeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(lanesCmd())
	rootCmd.AddCommand(clockCmd())
}

func initCmd() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := viper.GetString("root")
			if _, err := os.Stat(config.Path(root)); err == nil {
				return fmt.Errorf("%s already exists", config.Path(root))
			}
			cfg := config.Default(slug)
			if _, err := config.EnsureNodeID(root, cfg); err != nil {
				return err
			}
			return printJSONOrPlain(cfg, func() {
				fmt.Printf("Initialized %s (node %s)\n", config.Path(root), cfg.Node.ID)
			})
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "project slug")
	return cmd
}

func moveCmd() *cobra.Command {
	var feature, from, to, mode, evidenceJSON string
	cmd := &cobra.Command{
		Use:   "move <wp-id>",
		Short: "Append a lane transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e engine.Engine) error {
				wpID := args[0]
				if from == "" {
					current, err := e.CurrentLane(feature, wpID)
					if err != nil {
						return err
					}
					from = string(current)
				}
				var evidence *domain.Evidence
				if evidenceJSON != "" {
					evidence = &domain.Evidence{}
					if err := json.Unmarshal([]byte(evidenceJSON), evidence); err != nil {
						return fmt.Errorf("evidence-json: %w", err)
					}
				}
				ev, err := e.AppendTransition(engine.TransitionOptions{
					FeatureSlug:   feature,
					WPID:          wpID,
					From:          from,
					To:            to,
					Actor:         viper.GetString("actor"),
					Force:         viper.GetBool("force"),
					ExecutionMode: mode,
					Evidence:      evidence,
				})
				if err != nil {
					return err
				}
				return printJSONOrPlain(ev, func() {
					fmt.Printf("%s: %s -> %s (%s)\n", ev.WPID, ev.FromLane, ev.ToLane, ev.EventID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().StringVar(&from, "from", "", "current lane (defaults to the materialized lane)")
	cmd.Flags().StringVar(&to, "to", "", "target lane")
	cmd.Flags().StringVar(&mode, "execution-mode", "", "execution mode (defaults to config)")
	cmd.Flags().StringVar(&evidenceJSON, "evidence-json", "", "done evidence JSON")
	_ = cmd.MarkFlagRequired("feature")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func statusCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the materialized lane of every work package",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e engine.Engine) error {
				snap, err := e.Materialize(cmd.Context(), feature)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"WP", "Lane", "Actor", "Last Transition", "Forced"})
				for _, id := range sortedWPIDs(snap) {
					wp := snap.WorkPackages[id]
					tw.AppendRow(table.Row{id, wp.Lane, wp.Actor, wp.LastTransitionAt, wp.ForceCount})
				}
				tw.Render()
				fmt.Printf("Events: %d  Last: %s\n", snap.EventCount, snap.LastEventID)
				fmt.Print("Summary:")
				for _, lane := range domain.Lanes() {
					fmt.Printf(" %s=%d", lane, snap.Summary[lane])
				}
				fmt.Println()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func materializeCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Reduce the log, refresh the snapshot cache and legacy views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e engine.Engine) error {
				snap, err := e.Materialize(cmd.Context(), feature)
				if err != nil {
					return err
				}
				return printJSONOrPlain(snap, func() {
					fmt.Printf("Materialized %s: %d events, %d work packages\n",
						snap.FeatureSlug, snap.EventCount, len(snap.WorkPackages))
				})
			})
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func logCmd() *cobra.Command {
	var feature string
	var raw bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the feature's event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e engine.Engine) error {
				if raw {
					records, err := e.ReadRawEvents(feature)
					if err != nil {
						return err
					}
					return printJSON(records)
				}
				events, err := e.ReadEvents(feature)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Event", "WP", "From", "To", "Actor", "At", "Force"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.EventID, ev.WPID, ev.FromLane, ev.ToLane, ev.Actor, ev.At, ev.Force})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().BoolVar(&raw, "raw", false, "emit untyped records")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func lanesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lanes",
		Short: "Print the lanes and legality table",
		RunE: func(cmd *cobra.Command, args []string) error {
			type edge struct {
				From domain.Lane `json:"from"`
				To   domain.Lane `json:"to"`
			}
			var edges []edge
			for _, from := range domain.Lanes() {
				for _, to := range domain.Lanes() {
					if from != to && domain.IsLegalTransition(from, to) {
						edges = append(edges, edge{From: from, To: to})
					}
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"lanes": domain.Lanes(), "transitions": edges})
			}
			for _, e := range edges {
				fmt.Printf("%s -> %s\n", e.From, e.To)
			}
			return nil
		},
	}
}

func clockCmd() *cobra.Command {
	ck := &cobra.Command{Use: "clock", Short: "Inspect the logical clock"}
	var feature string
	tick := &cobra.Command{
		Use:   "tick",
		Short: "Advance this node's counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e engine.Engine) error {
				featureDir := e.Config.FeatureDir(e.Root, feature)
				value, err := clock.New(featureDir).Tick(e.NodeID)
				if err != nil {
					return err
				}
				return printJSONOrPlain(map[string]any{"node_id": e.NodeID, "value": value}, func() {
					fmt.Printf("%s: %d\n", e.NodeID, value)
				})
			})
		},
	}
	tick.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = tick.MarkFlagRequired("feature")
	ck.AddCommand(tick)
	return ck
}

// --- helpers ---

func withEngine(fn func(engine.Engine) error) error {
	root := viper.GetString("root")
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	nodeID, err := config.EnsureNodeID(root, cfg)
	if err != nil {
		return err
	}
	e := engine.New(root, cfg, nodeID)
	conn, err := cache.Open(cache.Config{Root: root})
	if err != nil {
		return err
	}
	defer conn.Close()
	e.Cache = &cache.Store{DB: conn}
	return fn(e)
}

func sortedWPIDs(snap domain.StatusSnapshot) []string {
	ids := make([]string, 0, len(snap.WorkPackages))
	for id := range snap.WorkPackages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrPlain(v any, plain func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	plain()
	return nil
}
