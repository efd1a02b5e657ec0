package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/engine"
)

// Tool name constants.
const (
	ToolNameAnalyze = "layerlens_analyze"
	ToolNameRuleSet = "layerlens_ruleset"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRepoPath indicates the repo_path parameter is empty.
	ErrEmptyRepoPath = errors.New("repo_path parameter is required and must not be empty")
	// ErrRepoPathNotAbsolute indicates the repo_path is not an absolute path.
	ErrRepoPathNotAbsolute = errors.New("repo_path must be an absolute path")
	// ErrRepoNotFound indicates the repository path does not exist.
	ErrRepoNotFound = errors.New("repository path does not exist")
)

// Input types (auto-generate JSON schemas via struct tags).

// AnalyzeInput is the input schema for the layerlens_analyze tool.
type AnalyzeInput struct {
	ExcludeGlobs []string `json:"exclude_globs,omitempty" jsonschema:"optional repository-relative glob patterns to exclude"`
	RepoPath     string   `json:"repo_path"               jsonschema:"absolute path to the repository to analyze"`
	Workers      int      `json:"workers,omitempty"       jsonschema:"classification worker count (default: 4)"`
	SkipCoverage bool     `json:"skip_coverage,omitempty" jsonschema:"skip coverage measurement (classification only)"`
}

// RuleSetInput is the input schema for the layerlens_ruleset tool.
type RuleSetInput struct {
	RulesFile string `json:"rules_file,omitempty" jsonschema:"optional path to a YAML rule-set file (default: built-in rules)"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// handleAnalyze runs a full repository analysis and returns the report.
func (s *Server) handleAnalyze(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input AnalyzeInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validateRepoPath(input.RepoPath); err != nil {
		return errorResult(err)
	}

	eng, err := engine.New(engine.Options{
		Workers:      input.Workers,
		ExcludeGlobs: input.ExcludeGlobs,
		SkipCoverage: input.SkipCoverage,
		Logger:       s.logger,
		Tracer:       s.tracer,
		Metrics:      s.metrics,
	})
	if err != nil {
		return errorResult(fmt.Errorf("build engine: %w", err))
	}

	rep, err := eng.Run(ctx, input.RepoPath)
	if err != nil {
		return errorResult(fmt.Errorf("analyze %s: %w", input.RepoPath, err))
	}

	return jsonResult(rep)
}

// handleRuleSet returns the active classification rule set.
func (s *Server) handleRuleSet(
	_ context.Context, _ *mcpsdk.CallToolRequest, input RuleSetInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.RulesFile == "" {
		return jsonResult(classify.DefaultRuleSet())
	}

	rules, err := classify.LoadRuleSet(input.RulesFile)
	if err != nil {
		return errorResult(fmt.Errorf("load rule set: %w", err))
	}

	return jsonResult(rules)
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validateRepoPath checks the repo_path tool parameter.
func validateRepoPath(path string) error {
	if path == "" {
		return ErrEmptyRepoPath
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrRepoPathNotAbsolute, path)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, path)
	}

	return nil
}
