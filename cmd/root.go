package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"codeguard/internal/version"
)

// exitError carries a non-zero exit code without an error message, e.g. when a
// scan finds issues below the --fail-under threshold.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

type globalOptions struct {
	debug       bool
	rulesDir    string
	noBuiltins  bool
	storeDriver string
	storePath   string
	storeDSN    string
}

func Execute(args []string) error {
	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "codeguard",
		Short:         "CodeGuard - static vulnerability detection for source files",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&g.rulesDir, "rules-dir", "", "Directory of *.rule.yaml files (default from config)")
	pf.BoolVar(&g.noBuiltins, "no-builtin-rules", false, "Use only rules from --rules-dir")
	pf.StringVar(&g.storeDriver, "store", "", "Persistence driver: memory|pebble|postgres")
	pf.StringVar(&g.storePath, "store-path", "", "Pebble data directory")
	pf.StringVar(&g.storeDSN, "store-dsn", "", "Postgres connection string")

	root.AddCommand(
		newScanCmd(g),
		newServeCmd(g),
		newRulesCmd(g),
		newStatsCmd(g),
		newExportCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
			return err
		},
	}
}
