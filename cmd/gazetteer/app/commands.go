package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/ingest"
	"github.com/placelore/gazetteer/pkg/review"
	"github.com/placelore/gazetteer/pkg/sources"
	"github.com/placelore/gazetteer/pkg/temporal"
)

// NewIngestCommand creates the ingest command.
func (a *App) NewIngestCommand() *cobra.Command {
	var (
		sourceID string
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "ingest <observations.yaml>",
		Short: "Run the ingestion pipeline over a file of observations",
		Long: `Ingest reads observations from a YAML file and runs them through the
full pipeline: change detection, confidence scoring, conflict
resolution, and commit or review routing. Interrupted runs resume from
the last fully committed batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coordinator, err := a.Coordinator(ctx)
			if err != nil {
				return err
			}

			source := sources.NewFile(gazetteer.SourceID(sourceID), args[0], pageSize)
			report, err := coordinator.Run(ctx, source)
			if report != nil {
				if renderErr := a.render(cmd, reportView(report)); renderErr != nil && err == nil {
					err = renderErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", string(sources.OSMCrawlID), "source identity for the observations")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "observations per batch")
	return cmd
}

// NewQueryCommand creates the query command and its subcommands.
func (a *App) NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query entity state and history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.newQueryCurrentCommand())
	cmd.AddCommand(a.newQueryAsOfCommand())
	cmd.AddCommand(a.newQueryTimelineCommand())
	cmd.AddCommand(a.newQueryActiveCommand())
	return cmd
}

func (a *App) newQueryCurrentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current <entity-id>",
		Short: "Show the current open version of every attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			attrs, err := store.CurrentState(ctx, gazetteer.EntityID(args[0]))
			if err != nil {
				return err
			}
			return a.render(cmd, attrs)
		},
	}
}

func (a *App) newQueryAsOfCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "asof <entity-id>",
		Short: "Reconstruct entity state as of a real-world time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			when, err := parseTime(at)
			if err != nil {
				return err
			}
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			state, err := store.StateAt(ctx, gazetteer.EntityID(args[0]), when)
			if err != nil {
				return err
			}
			for _, anomaly := range state.Anomalies {
				a.logger.Warn().
					Str("entity", string(anomaly.EntityID)).
					Str("attribute", string(anomaly.AttributeType)).
					Time("at", anomaly.At).
					Int("versions", anomaly.Versions).
					Msg("overlapping versions found at read time")
			}
			return a.render(cmd, state)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "point in time (RFC 3339, required)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (a *App) newQueryTimelineCommand() *cobra.Command {
	var attrType string
	cmd := &cobra.Command{
		Use:   "timeline <entity-id>",
		Short: "Show the full version history of one attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			versions, err := store.Timeline(ctx, gazetteer.EntityID(args[0]), gazetteer.AttributeType(attrType))
			if err != nil {
				return err
			}
			return a.render(cmd, versions)
		},
	}
	cmd.Flags().StringVar(&attrType, "type", "", "attribute type (required)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (a *App) newQueryActiveCommand() *cobra.Command {
	var (
		from, to string
		region   string
		attrType string
	)
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List entities with attribute intervals intersecting a time range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			start, err := parseTime(from)
			if err != nil {
				return err
			}
			end, err := parseTime(to)
			if err != nil {
				return err
			}
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			summaries, err := store.ActiveDuring(ctx, start, end, temporal.Filter{
				Region:        region,
				AttributeType: gazetteer.AttributeType(attrType),
			})
			if err != nil {
				return err
			}
			return a.render(cmd, summaries)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC 3339, required)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC 3339, required)")
	cmd.Flags().StringVar(&region, "region", "", "region code prefix filter")
	cmd.Flags().StringVar(&attrType, "type", "", "attribute type filter")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// NewReviewCommand creates the review command and its subcommands.
func (a *App) NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide queued changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.newReviewListCommand())
	cmd.AddCommand(a.newReviewNextCommand())
	cmd.AddCommand(a.newReviewDecideCommand("approve", review.DecisionApprove,
		"Approve a queued change and commit it as verified"))
	cmd.AddCommand(a.newReviewDecideCommand("reject", review.DecisionReject,
		"Reject a queued change, committing nothing"))
	cmd.AddCommand(a.newReviewOverrideCommand())
	return cmd
}

func (a *App) newReviewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending review items in priority order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := a.Queue(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, queue.Pending())
		},
	}
}

func (a *App) newReviewNextCommand() *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Take the highest-priority pending item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := a.Queue(cmd.Context())
			if err != nil {
				return err
			}
			item, ok := queue.NextFor(reviewer)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "review queue is empty")
				return nil
			}
			return a.render(cmd, item)
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer taking the item")
	return cmd
}

func (a *App) newReviewDecideCommand(use string, decision review.Decision, short string) *cobra.Command {
	var reviewer, note string
	cmd := &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			queue, err := a.Queue(ctx)
			if err != nil {
				return err
			}
			item, err := queue.Resolve(args[0], decision,
				review.WithReviewer(reviewer), review.WithNote(note))
			if err != nil {
				return err
			}
			coordinator, err := a.Coordinator(ctx)
			if err != nil {
				return err
			}
			if err := coordinator.ApplyDecision(ctx, item); err != nil {
				return err
			}
			return a.render(cmd, item)
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "who is making the decision")
	cmd.Flags().StringVar(&note, "note", "", "free-form decision note")
	return cmd
}

func (a *App) newReviewOverrideCommand() *cobra.Command {
	var reviewer, note, valueJSON string
	cmd := &cobra.Command{
		Use:   "override <item-id>",
		Short: "Decide a queued change with a replacement value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var value gazetteer.Value
			if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
				return errors.NewValidationError("value", valueJSON, "not valid JSON: "+err.Error())
			}
			queue, err := a.Queue(ctx)
			if err != nil {
				return err
			}
			item, err := queue.Resolve(args[0], review.DecisionOverride,
				review.WithReviewer(reviewer), review.WithNote(note), review.WithOverrideValue(value))
			if err != nil {
				return err
			}
			coordinator, err := a.Coordinator(ctx)
			if err != nil {
				return err
			}
			if err := coordinator.ApplyDecision(ctx, item); err != nil {
				return err
			}
			return a.render(cmd, item)
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "who is making the decision")
	cmd.Flags().StringVar(&note, "note", "", "free-form decision note")
	cmd.Flags().StringVar(&valueJSON, "value", "", "replacement value as JSON (required)")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

// NewSourcesCommand creates the sources command.
func (a *App) NewSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List source profiles in priority order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := a.Profiles()
			if err != nil {
				return err
			}
			ordered := make([]sources.Profile, 0, len(profiles))
			for _, id := range profiles.PriorityOrder() {
				ordered = append(ordered, profiles.Get(id))
			}
			return a.render(cmd, ordered)
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "gazetteer %s (commit %s, built %s)\n", a.version, a.commit, a.date)
			return nil
		},
	}
}

// render writes a value to stdout in the configured output format.
func (a *App) render(cmd *cobra.Command, value any) error {
	out := cmd.OutOrStdout()
	switch a.config.Output {
	case "yaml":
		data, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}
}

// runReportView flattens a run report for rendering, since error values
// do not marshal.
type runReportView struct {
	RunID           string  `json:"run_id" yaml:"run_id"`
	Source          string  `json:"source" yaml:"source"`
	Phase           string  `json:"phase" yaml:"phase"`
	Batches         int     `json:"batches" yaml:"batches"`
	Fetched         int     `json:"fetched" yaml:"fetched"`
	NoOps           int     `json:"no_ops" yaml:"no_ops"`
	Detected        int     `json:"detected" yaml:"detected"`
	Dropped         int     `json:"dropped" yaml:"dropped"`
	Applied         int     `json:"applied" yaml:"applied"`
	Queued          int     `json:"queued" yaml:"queued"`
	Ambiguous       int     `json:"ambiguous" yaml:"ambiguous"`
	Cursor          string  `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	Error           string  `json:"error,omitempty" yaml:"error,omitempty"`
}

func reportView(report *ingest.Report) runReportView {
	view := runReportView{
		RunID:           report.RunID,
		Source:          string(report.Source),
		Phase:           string(report.Phase),
		Batches:         report.Batches,
		Fetched:         report.Fetched,
		NoOps:           report.NoOps,
		Detected:        report.Detected,
		Dropped:         report.Dropped,
		Applied:         report.Applied,
		Queued:          report.Queued,
		Ambiguous:       report.Ambiguous,
		Cursor:          report.Cursor,
		DurationSeconds: report.Duration().Seconds(),
	}
	if report.Err != nil {
		view.Error = report.Err.Error()
	}
	return view
}

// parseTime parses an RFC 3339 timestamp, also accepting bare dates.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.NewValidationError("time", value, "timestamp required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.NewValidationError("time", value, "use RFC 3339 or YYYY-MM-DD")
	}
	return t.UTC(), nil
}

