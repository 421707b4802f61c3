package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/feedback"
	"github.com/zen-systems/switchboard/pkg/handoff"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/server"
)

var (
	configFile string
	jsonOutput bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Route user requests to specialist agents",
		Long: `Switchboard decides which specialist agent should handle a request,
	enforces the handoff policy between agents, and learns from user
	corrections to its routing decisions.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to routing config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(handoffCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(examplesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func routeCmd() *cobra.Command {
	var current string
	var force bool

	cmd := &cobra.Command{
		Use:   "route [text]",
		Short: "Classify text and show the chosen agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := router.RouteOptions{ForceClassifier: force}
			if current != "" {
				role, err := agent.ParseAgentRole(current)
				if err != nil {
					return err
				}
				opts.Current = role
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.engine.Route(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(d)
			}
			fmt.Printf("%s (%.2f via %s)\n", d.TargetAgent, d.Confidence, d.Source)
			if d.Rationale != "" {
				fmt.Printf("  %s\n", d.Rationale)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "agent currently handling the conversation")
	cmd.Flags().BoolVar(&force, "force-classifier", false, "consult the classifier even when keywords are confident")

	return cmd
}

func handoffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Inspect and perform handoffs between agents",
	}
	cmd.AddCommand(handoffCheckCmd())
	cmd.AddCommand(handoffDecideCmd())
	cmd.AddCommand(handoffExecuteCmd())
	cmd.AddCommand(handoffHistoryCmd())
	return cmd
}

func handoffCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <from> <to>",
		Short: "Report whether a transition is allowed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := agent.ParseAgentRole(args[0])
			if err != nil {
				return err
			}
			to, err := agent.ParseAgentRole(args[1])
			if err != nil {
				return err
			}
			ok := handoff.CanHandoff(from, to)
			if jsonOutput {
				return printJSON(map[string]any{"from": from, "to": to, "allowed": ok})
			}
			if ok {
				fmt.Printf("%s -> %s: allowed\n", from, to)
				return nil
			}
			fmt.Printf("%s -> %s: not allowed\n", from, to)
			return nil
		},
	}
}

func handoffDecideCmd() *cobra.Command {
	var current string

	cmd := &cobra.Command{
		Use:   "decide [text]",
		Short: "Decide whether the current agent should hand off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := agent.ParseAgentRole(current)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.handoff.Decide(cmd.Context(), args[0], role)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(d)
			}
			if d.ShouldHandoff {
				fmt.Printf("hand off %s -> %s (%.2f)\n", d.Handoff.From, d.Handoff.TargetAgent, d.Routing.Confidence)
				return nil
			}
			fmt.Printf("stay with %s: %s (router chose %s at %.2f)\n", role, d.Reason, d.Routing.TargetAgent, d.Routing.Confidence)
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", agent.Orchestrator.String(), "agent currently handling the conversation")

	return cmd
}

func handoffExecuteCmd() *cobra.Command {
	var from, to, reason, message, userID, threadID string
	var contextPairs []string

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Validate and record a handoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, err := parsePairs(contextPairs)
			if err != nil {
				return err
			}
			fromRole, _ := agent.ParseAgentRole(from)
			toRole, _ := agent.ParseAgentRole(to)

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res := a.handoff.Execute(cmd.Context(), agent.Handoff{
				From:        fromRole,
				TargetAgent: toRole,
				Reason:      reason,
				Context:     hctx,
			}, message, userID, threadID)
			if jsonOutput {
				if err := printJSON(res); err != nil {
					return err
				}
			}
			if res.Failure != nil {
				return res.Failure
			}
			if !jsonOutput {
				fmt.Printf("handoff %s recorded: %s -> %s\n", res.Record.ID, res.Record.Handoff.From, res.Record.Handoff.TargetAgent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "agent handing off")
	cmd.Flags().StringVar(&to, "to", "", "agent receiving control")
	cmd.Flags().StringVar(&reason, "reason", "", "why control is moving")
	cmd.Flags().StringVar(&message, "message", "", "message that triggered the handoff")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	cmd.Flags().StringArrayVar(&contextPairs, "context", nil, "context entry as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func handoffHistoryCmd() *cobra.Command {
	var userID, threadID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded handoffs for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.handoff.History(cmd.Context(), userID, threadID, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(records)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tFROM\tTO\tTHREAD\tREASON")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Timestamp.Local().Format(time.DateTime),
					r.Handoff.From, r.Handoff.TargetAgent, r.ThreadID, r.Handoff.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&threadID, "thread", "", "limit to one thread")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Submit and process routing feedback",
	}
	cmd.AddCommand(feedbackSubmitCmd())
	cmd.AddCommand(feedbackProcessCmd())
	return cmd
}

func feedbackSubmitCmd() *cobra.Command {
	var query, selected, source, feedbackType, correct, comment string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record feedback on a routing decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := agent.FeedbackEntry{
				OriginalQuery:     query,
				RoutingConfidence: confidence,
				UserComment:       comment,
			}
			var err error
			if entry.SelectedAgent, err = agent.ParseAgentRole(selected); err != nil {
				return err
			}
			if entry.RoutingSource, err = agent.ParseSource(source); err != nil {
				return err
			}
			if entry.FeedbackType, err = agent.ParseFeedbackType(feedbackType); err != nil {
				return err
			}
			if correct != "" {
				role, err := agent.ParseAgentRole(correct)
				if err != nil {
					return err
				}
				entry.CorrectAgent = &role
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.feedback.Submit(cmd.Context(), entry)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{"id": id})
			}
			fmt.Printf("feedback %s recorded\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "original user text")
	cmd.Flags().StringVar(&selected, "selected", "", "agent the router chose")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence of the routed decision")
	cmd.Flags().StringVar(&source, "source", string(agent.SourceKeyword), "tier that made the decision")
	cmd.Flags().StringVar(&feedbackType, "type", "", "correct, incorrect, improved, tool_failure or slow")
	cmd.Flags().StringVar(&correct, "correct", "", "agent that should have handled the request")
	cmd.Flags().StringVar(&comment, "comment", "", "free-form comment")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("selected")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func feedbackProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Promote pending corrections into the example corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.feedback.ProcessPending(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int{"promoted": n})
			}
			fmt.Printf("promoted %d feedback entries\n", n)
			return nil
		},
	}
}

func examplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Manage the routing example corpus",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Import seed examples from the routing config",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.feedback.ImportSeedExamples(cmd.Context(), a.cfg.RoutingConfig.SeedExamples)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int{"imported": n})
			}
			fmt.Printf("imported %d seed examples\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Compute embeddings for examples that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.feedback.SeedExampleEmbeddings(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int{"seeded": n})
			}
			fmt.Printf("embedded %d examples\n", n)
			return nil
		},
	})

	return cmd
}

func statsCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show routing and feedback statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.feedback.RoutingStats(cmd.Context(), time.Now().Add(-window))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(s)
			}
			printStats(s)
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "how far back to aggregate")

	return cmd
}

func printStats(s feedback.Stats) {
	fmt.Printf("Decisions since %s: %d (mean confidence %.2f)\n",
		s.Since.Local().Format(time.DateTime), s.Decisions, s.MeanConfidence)
	if s.Judged > 0 {
		fmt.Printf("Accuracy: %.1f%% of %d judged\n", s.Accuracy*100, s.Judged)
	}
	fmt.Printf("Pending corrections: %d\n", s.PendingFeedback)
	fmt.Printf("Corpus version: %d\n\n", s.CorpusVersion)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tDECISIONS\tEXAMPLES")
	for _, role := range agent.AllRoles() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", role, s.ByAgent[role], s.Examples[role])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SOURCE\tDECISIONS\t")
	for _, src := range agent.Sources() {
		fmt.Fprintf(w, "%s\t%d\t\n", src, s.BySource[src])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FEEDBACK\tCOUNT\t")
	for _, ft := range agent.FeedbackTypes() {
		fmt.Fprintf(w, "%s\t%d\t\n", ft, s.Feedback[ft])
	}
	_ = w.Flush()
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents and their routing profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tKIND\tNAMES\tKEYWORDS")
			for _, role := range agent.AllRoles() {
				p := cfg.RoutingConfig.Profile(role)
				kind := "specialist"
				if !role.IsSpecialist() {
					kind = "hub"
				}
				keywords := append(append([]string{}, p.Keywords...), p.Phrases...)
				sort.Strings(keywords)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", role, kind, formatList(p.DisplayNames), formatList(keywords))
			}
			return w.Flush()
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the feedback scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if _, err := a.corpus.Reload(ctx); err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}

			srv := server.New(a.cfg.Server, server.Deps{
				Engine:   a.engine,
				Handoff:  a.handoff,
				Feedback: a.feedback,
				Store:    a.store,
				Metrics:  a.metrics,
			}, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			if !noScheduler {
				sched := feedback.NewScheduler(a.feedback, a.cfg.Server.ProcessInterval, a.logger)
				g.Go(func() error {
					if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not process feedback on an interval")

	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			token, err := server.IssueAdminToken(cfg.Server.AdminSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cron", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}

func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid context entry %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
