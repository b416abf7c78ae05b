package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codeguard/internal/report"
	"codeguard/internal/safefile"
	"codeguard/internal/store"
	"codeguard/internal/version"
)

func newExportCmd(g *globalOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <analysis-id>",
		Short: "Export a stored analysis as JSON, SARIF or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildRuntime(cmd.Context(), g, runtimeOptions{persist: true})
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.store.GetAnalysis(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("analysis %q not found", args[0])
			}
			if err != nil {
				return err
			}

			var body []byte
			switch strings.ToLower(format) {
			case "json":
				body, err = report.MarshalExport(report.BuildExport(a.Record.FileName, a.Record.CreatedAt, a.Findings))
				body = append(body, '\n')
			case "sarif":
				body, err = report.MarshalSARIF(a.Record.FileName, version.Version, a.Findings)
				body = append(body, '\n')
			case "markdown", "md":
				body = []byte(report.RenderMarkdown(a.Record, a.Findings))
			default:
				return fmt.Errorf("unsupported --format %q (json|sarif|markdown)", format)
			}
			if err != nil {
				return err
			}
			if out != "" {
				return safefile.WriteFileAtomic(out, body, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json|sarif|markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}
