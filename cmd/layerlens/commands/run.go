// Package commands implements CLI command handlers for layerlens.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/config"
	"github.com/layerlens/layerlens/pkg/coverage"
	"github.com/layerlens/layerlens/pkg/engine"
	"github.com/layerlens/layerlens/pkg/report"
)

// RunCommand holds configuration for the run command.
type RunCommand struct {
	configPath   string
	format       string
	output       string
	rulesFile    string
	excludeGlobs []string
	workers      int
	skipCoverage bool
	noColor      bool
	path         string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{
		format: report.FormatText,
	}

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Analyze a repository's test layers",
		Long: "Discover test files, classify them into unit/integration/e2e layers,\n" +
			"detect cross-layer duplicate test names, and measure per-layer coverage.",
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: ./layerlens.yaml)")
	cmd.Flags().StringVar(&rc.format, "format", report.FormatText, "Output format: text, json, plot")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().StringVar(&rc.rulesFile, "rules", "", "YAML rule-set file overriding built-in classification patterns")
	cmd.Flags().StringSliceVar(&rc.excludeGlobs, "exclude", nil, "Repository-relative glob patterns to exclude")
	cmd.Flags().IntVar(&rc.workers, "workers", 0, "Classification worker count (0 = config default)")
	cmd.Flags().BoolVar(&rc.skipCoverage, "skip-coverage", false, "Skip coverage measurement (classification only)")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "Disable colored text output")
	cmd.Flags().StringVarP(&rc.path, "path", "p", ".", "Repository path to analyze")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	path := rc.resolvePath(args)

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}

	logger := rc.buildLogger(cmd, cfg)

	rules, err := rc.loadRules(cfg)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Rules:               rules,
		Workers:             rc.resolveWorkers(cfg),
		ExcludeGlobs:        rc.resolveExcludes(cfg),
		SkipCoverage:        rc.skipCoverage || !cfg.Coverage.Enabled,
		CoverageParallelism: cfg.Coverage.Parallelism,
		CoverageTimeouts: coverage.Timeouts{
			Report: cfg.Coverage.ReportTimeout,
			Test:   cfg.Coverage.TestTimeout,
			Setup:  cfg.Coverage.SetupTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	started := time.Now()

	rep, err := eng.Run(cmd.Context(), path)
	if err != nil {
		return err
	}

	logger.Info("analysis finished", "path", path, "elapsed", time.Since(started).Round(time.Millisecond))

	writer, closeWriter, err := rc.openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeWriter()

	return report.NewRenderer(rc.noColor || rc.output != "").Render(rep, rc.format, writer)
}

func (rc *RunCommand) resolvePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return rc.path
}

func (rc *RunCommand) resolveWorkers(cfg *config.Config) int {
	if rc.workers > 0 {
		return rc.workers
	}

	return cfg.Analysis.Workers
}

func (rc *RunCommand) resolveExcludes(cfg *config.Config) []string {
	if len(rc.excludeGlobs) > 0 {
		return rc.excludeGlobs
	}

	return cfg.Analysis.ExcludeGlobs
}

// loadRules resolves the rule set: flag wins over config; empty means the
// built-in rules.
func (rc *RunCommand) loadRules(cfg *config.Config) (*classify.RuleSet, error) {
	rulesFile := rc.rulesFile
	if rulesFile == "" {
		rulesFile = cfg.Analysis.RulesFile
	}

	if rulesFile == "" {
		return nil, nil
	}

	rules, err := classify.LoadRuleSet(rulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rule set %s: %w", rulesFile, err)
	}

	return rules, nil
}

func (rc *RunCommand) buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := cfg.Logging.SlogLevel()

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts))
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
}

// openOutput returns the report writer and a close function. Stdout is
// returned when no output file is requested.
func (rc *RunCommand) openOutput(cmd *cobra.Command) (io.Writer, func(), error) {
	if rc.output == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}

	file, err := os.Create(rc.output)
	if err != nil {
		return nil, nil, fmt.Errorf("create output %s: %w", rc.output, err)
	}

	return file, func() { _ = file.Close() }, nil
}
