package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"codeguard/internal/model"
	"codeguard/internal/score"
	"codeguard/internal/store"
)

type statsOutput struct {
	Stats   *model.UserStats     `json:"stats,omitempty"`
	Summary score.AggregateStats `json:"summary"`
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var (
		userID   string
		scores   string
		findings string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's points and score trend, or summarize a score history",
		Long: `With --user, read the user's profile and analysis history from the store.
With --scores, summarize the given history (oldest first) without a store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (userID == "") == (scores == "" && findings == "") {
				return errors.New("use either --user or --scores/--findings")
			}
			persist := userID != ""
			env, err := buildRuntime(cmd.Context(), g, runtimeOptions{persist: persist})
			if err != nil {
				return err
			}
			defer env.Close()

			var out statsOutput
			if userID != "" {
				st, err := env.store.UserStats(cmd.Context(), userID)
				switch {
				case errors.Is(err, store.ErrNotFound):
					st = model.UserStats{UserID: userID}
				case err != nil:
					return err
				}
				out.Stats = &st
				if out.Summary, err = env.analyzer.UserSummary(cmd.Context(), userID); err != nil {
					return err
				}
			} else {
				s, err := parseIntList(scores)
				if err != nil {
					return fmt.Errorf("--scores: %w", err)
				}
				f, err := parseIntList(findings)
				if err != nil {
					return fmt.Errorf("--findings: %w", err)
				}
				out.Summary = env.analyzer.ComputeAggregateStats(s, f)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			w := cmd.OutOrStdout()
			if out.Stats != nil {
				fmt.Fprintf(w, "user:     %s\npoints:   %d\nscore:    %d\n", out.Stats.UserID, out.Stats.Points, out.Stats.SecurityScore)
			}
			fmt.Fprintf(w, "analyses: %d\nfindings: %d\naverage:  %d\ntrend:    %s\n",
				out.Summary.TotalAnalyses, out.Summary.TotalFindings, out.Summary.AverageScore, out.Summary.Trend)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "User id to read from the store")
	f.StringVar(&scores, "scores", "", "Comma-separated score history, oldest first")
	f.StringVar(&findings, "findings", "", "Comma-separated finding counts")
	f.BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
