package classify

import (
	"errors"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Sentinel rule-set validation errors.
var (
	ErrRuleSetVersion = errors.New("rule set version is required")
	ErrRuleSetLayer   = errors.New("rule set references an unknown layer")
	ErrRuleSetSchema  = errors.New("rule set document failed schema validation")
)

// LayerRules holds the ordered pattern lists for one layer. All patterns are
// regular expressions matched case-insensitively against file content;
// PathMarkers are additionally matched against the file path.
type LayerRules struct {
	// Identity patterns are framework markers and declarative tags whose
	// presence attributes every test function in the file to this layer.
	Identity []string `yaml:"identity" json:"identity"`

	// PathMarkers are naming-convention patterns matched against the file
	// path and name as well as the content.
	PathMarkers []string `yaml:"path_markers" json:"path_markers"`
}

// DeclarationRule recognizes one language-family test-declaration shape.
// The pattern must contain a single capture group yielding the test name.
type DeclarationRule struct {
	// Family names the language family the rule applies to (informational).
	Family string `yaml:"family" json:"family"`

	// Pattern is the declaration regex with one capture group for the name.
	Pattern string `yaml:"pattern" json:"pattern"`
}

// RuleSet is the versioned pattern configuration driving classification.
// It is policy data: new languages and frameworks are added here, not in
// the classification algorithm.
type RuleSet struct {
	// Version identifies the rule-set revision for reproducibility.
	Version string `yaml:"version" json:"version"`

	// Layers maps each layer to its identity and naming rules.
	Layers map[Layer]LayerRules `yaml:"layers" json:"layers"`

	// Declarations are the shared test-declaration patterns. Functions they
	// extract are attributed to a layer by the identity rules above.
	Declarations []DeclarationRule `yaml:"declarations" json:"declarations"`
}

// ruleSetSchema validates the shape of an externally supplied rule-set
// document before it is compiled.
const ruleSetSchema = `{
	"type": "object",
	"required": ["version", "layers", "declarations"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"layers": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"identity": {"type": "array", "items": {"type": "string"}},
					"path_markers": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"declarations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["pattern"],
				"properties": {
					"family": {"type": "string"},
					"pattern": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// DefaultRuleSet returns the built-in pattern tables covering the Python,
// JavaScript/TypeScript, Java/Kotlin, C#, Ruby, Go, PHP, Rust, Scala and
// Dart test idioms.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: "2026.1",
		Layers: map[Layer]LayerRules{
			LayerUnit: {
				Identity: []string{
					`import\s+unittest`,
					`import\s+org\.junit`,
					`@Test\b`,
					`\bpytest\b`,
					`\bjest\b`, `\bmocha\b`, `\bchai\b`,
					`require\s+['"]rspec`, `RSpec\.describe`,
					`testing\.T\b`,
					`use\s+PHPUnit`, `extends\s+TestCase`,
					`using\s+xunit`, `using\s+nunit`,
					`using\s+Microsoft\.VisualStudio\.TestTools\.UnitTesting`,
					`#\[test\]`,
					`\bFlatSpec\b`, `\bFunSuite\b`,
					`flutter_test`,
				},
				PathMarkers: []string{
					`(^|[/_.])unit([/_.]|$)`,
				},
			},
			LayerIntegration: {
				Identity: []string{
					`@SpringBootTest`,
					`\btestcontainers\b`,
					`WebTestClient`,
					`django\.test`,
					`flask_testing`,
					`\blive_server\b`,
					`\bsupertest\b`,
					`\bhttptest\b`,
					`\bsqlmock\b`,
					`cy\.request`,
					`@pytest\.mark\.integration`,
					`@IntegrationTest`,
					`with_database`,
				},
				PathMarkers: []string{
					`integration`,
				},
			},
			LayerE2E: {
				Identity: []string{
					`\bselenium\b`,
					`\bcypress\b`,
					`\bpuppeteer\b`,
					`\bplaywright\b`,
					`cy\.visit`,
					`page\.goto`,
					`browser\.newPage`,
					`@E2ETest`,
					`@pytest\.mark\.e2e`,
					`end-to-end`,
					`androidx\.test`, `\bEspresso\b`, `\bUiAutomator\b`,
					`\bbehave\b`, `\brobotframework\b`,
					`\bSpecFlow\b`,
				},
				PathMarkers: []string{
					`(^|[/_.])e2e([/_.]|$)`,
					`\.spec\.[jt]s$`,
				},
			},
		},
		Declarations: []DeclarationRule{
			{Family: "python", Pattern: `(?m)^\s*def\s+(test_\w+)\s*\(`},
			{Family: "go", Pattern: `(?m)^func\s+(Test[A-Z]\w*)\s*\(`},
			{Family: "javascript", Pattern: `(?m)\b(?:it|test)\s*\(\s*['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`},
			{Family: "jvm", Pattern: `@Test[\s\S]{0,200}?(?:void|fun|def)\s+(\w+)\s*\(`},
			{Family: "csharp", Pattern: `\[(?:Test|TestMethod|Fact|Theory)\][\s\S]{0,200}?(?:void|Task)\s+(\w+)\s*\(`},
			{Family: "ruby", Pattern: `(?m)^\s*def\s+(test_\w+)\b`},
			{Family: "rspec", Pattern: `(?m)\bit\s+['"]([^'"]+)['"]\s+do\b`},
			{Family: "rust", Pattern: `#\[test\]\s*(?:pub\s+)?fn\s+(\w+)`},
			{Family: "php", Pattern: `(?m)function\s+(test\w+)\s*\(`},
		},
	}
}

// LoadRuleSet reads a YAML rule-set document from path, validates it against
// the rule-set schema, and returns the parsed rules.
func LoadRuleSet(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}

	// Decode YAML into a generic document first so it can be run through
	// the JSON schema validator.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(ruleSetSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate rule set: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return nil, fmt.Errorf("%w: %v", ErrRuleSetSchema, msgs)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}

	return &rs, nil
}

// Validate checks structural invariants of the rule set.
func (rs *RuleSet) Validate() error {
	if rs.Version == "" {
		return ErrRuleSetVersion
	}

	for layer := range rs.Layers {
		if !layer.Valid() {
			return fmt.Errorf("%w: %q", ErrRuleSetLayer, layer)
		}
	}

	return nil
}
