package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeguard/internal/analysis"
	"codeguard/internal/badge"
	"codeguard/internal/detect"
	"codeguard/internal/ignorefile"
	"codeguard/internal/model"
	"codeguard/internal/progress"
	"codeguard/internal/report"
	"codeguard/internal/safefile"
	"codeguard/internal/tui"
	"codeguard/internal/version"
)

const maxSourceBytes = 2 << 20

var skippedDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "dist": {}, "build": {}, ".codeguard": {},
}

type scanOptions struct {
	language   string
	format     string
	out        string
	badgePath  string
	badgeStyle string
	userID     string
	persist    bool
	verbose    bool
	useTUI     bool
	ignores    bool
	failUnder  int
	excludes   []string
	ai         aiFlags
}

// scanFile is one input ready for analysis.
type scanFile struct {
	name   string
	source string
}

type scanOutcome struct {
	FileName string `json:"fileName"`
	model.AnalysisResult
	Language         string `json:"language"`
	AIUsed           bool   `json:"aiUsed"`
	AnalysisID       string `json:"analysisId,omitempty"`
	PersistenceError string `json:"persistenceError,omitempty"`
	Suppressed       int    `json:"suppressed,omitempty"`
	err              error
}

func newScanCmd(g *globalOptions) *cobra.Command {
	o := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [path ...]",
		Short: "Analyze source files for XSS, injection and hardcoded secrets",
		Long: `Analyze source files with the active rule set and, optionally, an AI provider.

Paths may be files or directories; directories are walked for files with a
recognized extension. With no path, or "-", source is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.language, "language", "l", "", "Source language (default: detect from file name)")
	f.StringVarP(&o.format, "format", "f", "human", "Output format: human|json|sarif|markdown|export")
	f.StringVarP(&o.out, "out", "o", "", "Write output to this file instead of stdout")
	f.StringVar(&o.badgePath, "badge", "", "Write a score badge for the lowest-scoring file (.svg, or .json for a shields.io endpoint)")
	f.StringVar(&o.badgeStyle, "badge-style", "flat", "SVG badge style: flat|flat-square")
	f.StringVar(&o.userID, "user", "", "User id for stored analyses and point statistics")
	f.BoolVar(&o.persist, "persist", false, "Store analyses with the configured store driver")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Print analysis progress to stderr")
	f.BoolVar(&o.useTUI, "tui", false, "Browse results in an interactive terminal UI")
	f.BoolVar(&o.ignores, "honor-ignores", false, "Drop findings covered by codeguard:ignore comments")
	f.StringArrayVar(&o.excludes, "exclude", nil, "Extra .codeguardignore-style pattern for directory scans (repeatable)")
	f.IntVar(&o.failUnder, "fail-under", 0, "Exit with status 2 when any file scores below this value")
	f.BoolVar(&o.ai.enabled, "ai", false, "Also ask the configured AI provider")
	f.StringVar(&o.ai.profile, "ai-profile", "", "AI profile name")
	f.StringVar(&o.ai.provider, "ai-provider", "", "AI provider: openai|anthropic|gemini")
	f.StringVar(&o.ai.model, "ai-model", "", "AI model override")
	f.StringVar(&o.ai.fallback, "ai-fallback", "", "Result on AI failure: none|demo")
	f.DurationVar(&o.ai.timeout, "ai-timeout", 0, "AI request timeout (default 30s)")
	return cmd
}

func runScan(cmd *cobra.Command, g *globalOptions, o *scanOptions, args []string) error {
	format := strings.ToLower(strings.TrimSpace(o.format))
	switch format {
	case "human", "json", "sarif", "markdown", "export":
	default:
		return fmt.Errorf("unsupported --format %q (human|json|sarif|markdown|export)", o.format)
	}
	if o.failUnder < 0 || o.failUnder > 100 {
		return fmt.Errorf("--fail-under must be within 0..100")
	}

	if o.useTUI && (len(args) == 0 || (len(args) == 1 && args[0] == "-")) {
		return fmt.Errorf("--tui needs file or directory arguments; stdin is used by the terminal UI")
	}

	files, err := collectInputs(cmd.InOrStdin(), args, o.excludes)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found")
	}

	ctx := cmd.Context()
	var (
		sink    progress.Sink
		events  chan progress.Event
		tuiSink *progress.ChannelSink
	)
	switch {
	case o.useTUI:
		events = make(chan progress.Event, 256)
		tuiSink = progress.NewChannelSink(events)
		sink = tuiSink
	case o.verbose:
		sink = progress.NewPlainSink(cmd.ErrOrStderr())
	}

	env, err := buildRuntime(ctx, g, runtimeOptions{
		ai:      &o.ai,
		sink:    sink,
		persist: o.persist,
		publish: o.persist,
	})
	if err != nil {
		return err
	}
	defer env.Close()

	var outcomes []scanOutcome
	if o.useTUI {
		outcomes, err = scanWithTUI(ctx, env, o, files, events)
		if n := tuiSink.Dropped(); n > 0 {
			env.logger.Debug("progress events dropped", zap.Int64("count", n))
		}
		if err != nil {
			return err
		}
	} else {
		outcomes = scanAll(ctx, env, o, files, nil)
	}

	for _, oc := range outcomes {
		if oc.err != nil {
			return fmt.Errorf("%s: %w", oc.FileName, oc.err)
		}
	}

	if !o.useTUI || o.out != "" {
		if err := writeScanOutput(cmd, format, o.out, outcomes); err != nil {
			return err
		}
	}
	if o.badgePath != "" {
		if err := writeBadge(o.badgePath, o.badgeStyle, outcomes); err != nil {
			return err
		}
	}

	if o.failUnder > 0 {
		for _, oc := range outcomes {
			if oc.SecurityScore < o.failUnder {
				return &exitError{code: 2, msg: fmt.Sprintf("%s scored %d, below --fail-under %d", oc.FileName, oc.SecurityScore, o.failUnder)}
			}
		}
	}
	return nil
}

// scanAll analyzes files in order. When results is non-nil every outcome is also
// sent there as it completes.
func scanAll(ctx context.Context, env *runtimeEnv, o *scanOptions, files []scanFile, results chan<- tui.FileResult) []scanOutcome {
	outcomes := make([]scanOutcome, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		out, err := env.analyzer.Analyze(ctx, analysis.Request{
			SourceText:   f.source,
			FileName:     f.name,
			Language:     o.language,
			UseAI:        o.ai.enabled || env.cfg.AI.IsEnabled(),
			UserID:       o.userID,
			HonorIgnores: o.ignores,
		})
		oc := scanOutcome{
			FileName:       f.name,
			AnalysisResult: out.Result,
			Language:       out.Language,
			AIUsed:         out.AIUsed,
			AnalysisID:     out.AnalysisID,
			Suppressed:     len(out.Suppressed),
			err:            err,
		}
		if out.PersistErr != nil {
			oc.PersistenceError = out.PersistErr.Error()
		}
		if len(out.RuleErrors) > 0 {
			env.logger.Warn("rules skipped", zap.String("file", f.name), zap.Int("count", len(out.RuleErrors)))
		}
		outcomes = append(outcomes, oc)
		if results != nil {
			results <- tui.FileResult{FileName: f.name, Result: out.Result, Err: err}
		}
		if err != nil {
			break
		}
	}
	return outcomes
}

// runTUI drives the terminal UI; replaced in tests.
var runTUI = tui.Run

// scanWithTUI analyzes in the background while the UI runs. The producer is always
// drained before returning so the store is never closed under it.
func scanWithTUI(ctx context.Context, env *runtimeEnv, o *scanOptions, files []scanFile, events chan progress.Event) ([]scanOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan tui.FileResult, len(files))
	var (
		outcomes []scanOutcome
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(results)
		defer close(events)
		outcomes = scanAll(ctx, env, o, files, results)
	}()
	if err := runTUI(tui.Options{Events: events, Results: results}); err != nil {
		cancel()
		wg.Wait()
		return nil, err
	}
	wg.Wait()
	return outcomes, nil
}

func writeScanOutput(cmd *cobra.Command, format, outPath string, outcomes []scanOutcome) error {
	if outPath != "" {
		switch {
		case format == "sarif":
			return report.WriteSARIF(outPath, version.Version, fileFindings(outcomes))
		case format == "export" && len(outcomes) == 1:
			return report.WriteExport(outPath, report.BuildExport(outcomes[0].FileName, time.Now(), outcomes[0].Findings))
		}
	}

	var (
		body []byte
		err  error
	)
	switch format {
	case "human":
		color := outPath == "" && stdoutIsTerminal(cmd.OutOrStdout())
		var b strings.Builder
		for i, oc := range outcomes {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(report.FormatHuman(oc.FileName, oc.AnalysisResult, color))
			if oc.PersistenceError != "" {
				b.WriteString("  warning: analysis not saved: " + oc.PersistenceError + "\n")
			}
		}
		body = []byte(b.String())
	case "json":
		body, err = json.MarshalIndent(outcomes, "", "  ")
	case "sarif":
		body, err = report.MarshalSARIFFiles(version.Version, fileFindings(outcomes))
	case "markdown":
		var b strings.Builder
		for _, oc := range outcomes {
			b.WriteString(report.RenderMarkdown(model.AnalysisRecord{
				ID:           oc.AnalysisID,
				FileName:     oc.FileName,
				Language:     oc.Language,
				AIUsed:       oc.AIUsed,
				Score:        oc.SecurityScore,
				FindingCount: oc.TotalFindings,
			}, oc.Findings))
			b.WriteString("\n")
		}
		body = []byte(b.String())
	case "export":
		now := time.Now()
		exports := make([]report.Export, 0, len(outcomes))
		for _, oc := range outcomes {
			exports = append(exports, report.BuildExport(oc.FileName, now, oc.Findings))
		}
		if len(exports) == 1 {
			body, err = report.MarshalExport(exports[0])
		} else {
			body, err = json.MarshalIndent(exports, "", "  ")
		}
	}
	if err != nil {
		return err
	}
	if format != "human" && format != "markdown" {
		body = append(body, '\n')
	}
	if outPath != "" {
		return safefile.WriteFileAtomic(outPath, body, 0o600)
	}
	_, err = cmd.OutOrStdout().Write(body)
	return err
}

func fileFindings(outcomes []scanOutcome) []report.FileFindings {
	files := make([]report.FileFindings, 0, len(outcomes))
	for _, oc := range outcomes {
		files = append(files, report.FileFindings{FileName: oc.FileName, Findings: oc.Findings})
	}
	return files
}

func writeBadge(path, style string, outcomes []scanOutcome) error {
	results := make([]model.AnalysisResult, 0, len(outcomes))
	for _, oc := range outcomes {
		results = append(results, oc.AnalysisResult)
	}
	summary := badge.Summarize(results...)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		body, err := badge.ShieldsJSON("codeguard", summary, badge.ParseStyle(style))
		if err != nil {
			return err
		}
		return safefile.WriteFileAtomic(path, body, 0o644)
	}
	svg := badge.RenderSVG("codeguard", summary, badge.ParseStyle(style))
	return safefile.WriteFileAtomic(path, []byte(svg), 0o644)
}

// collectInputs expands args into readable source files. Directories are walked
// for files whose extension maps to a known language, honoring the directory's
// .codeguardignore and excludes.
func collectInputs(stdin io.Reader, args, excludes []string) ([]scanFile, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(io.LimitReader(stdin, maxSourceBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(b) > maxSourceBytes {
			return nil, fmt.Errorf("stdin exceeds %d bytes", maxSourceBytes)
		}
		return []scanFile{{name: "", source: string(b)}}, nil
	}

	var out []scanFile
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := readSource(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			continue
		}
		ignore, err := ignorefile.Load(filepath.Join(arg, ignorefile.Name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ignorefile.Name, err)
		}
		if len(excludes) > 0 {
			ignore = ignore.Extend(excludes)
		}
		var paths []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(arg, path)
			if relErr != nil {
				return relErr
			}
			if d.IsDir() {
				if path == arg {
					return nil
				}
				if _, skip := skippedDirs[d.Name()]; skip || ignore.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 || ignore.Match(rel, false) {
				return nil
			}
			if detect.Language(d.Name(), "").Language != "" {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
		sort.Strings(paths)
		for _, p := range paths {
			f, err := readSource(p)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func readSource(path string) (scanFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return scanFile{}, err
	}
	if info.Size() > maxSourceBytes {
		return scanFile{}, fmt.Errorf("%s exceeds %d bytes", path, maxSourceBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return scanFile{}, err
	}
	return scanFile{name: filepath.ToSlash(path), source: string(b)}, nil
}

func stdoutIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.ColorEnabled(f)
}
