package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codeguard/internal/model"
	"codeguard/internal/rules"
)

func newRulesCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate detection rules",
	}
	cmd.AddCommand(newRulesListCmd(g), newRulesValidateCmd(), newRulesInitCmd())
	return cmd
}

func newRulesListCmd(g *globalOptions) *cobra.Command {
	var (
		language   string
		activeOnly bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			rs, err := loadRules(g, cfg, logger)
			if err != nil {
				return err
			}

			lang := model.NormalizeLanguage(language)
			var out []rules.Rule
			for _, r := range rs.All() {
				if lang != "" && r.Language != lang {
					continue
				}
				if activeOnly && !r.IsActive {
					continue
				}
				out = append(out, r)
			}

			if asJSON {
				if out == nil {
					out = []rules.Rule{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLANGUAGE\tCATEGORY\tSEVERITY\tACTIVE\tNAME")
			for _, r := range out {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.Language, r.Category, r.Severity, r.IsActive, r.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Only rules for this language")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.rule.yaml> [...]",
		Short: "Check rule files for schema and pattern errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				loaded, warnings, err := rules.ReadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				for _, w := range warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), w)
					failed++
				}
				for _, r := range loaded {
					if err := rules.CheckPattern(r); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						failed++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s)\n", path, len(loaded))
			}
			if failed > 0 {
				return fmt.Errorf("%d problem(s) found", failed)
			}
			return nil
		},
	}
}

func newRulesInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the builtin rules to a rule file for editing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultRulesDir + "/builtin.rule.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if !strings.HasSuffix(path, ".rule.yaml") {
				return fmt.Errorf("rule file name must end in .rule.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := rules.WriteFile(path, rules.Builtins()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
