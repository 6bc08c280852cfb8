package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Fayeq-qamar/velvet-app-sub002/rules"
)

// RuleFile is the top-level YAML structure for an environment rules file.
type RuleFile struct {
	Environments []EnvironmentRules `yaml:"environments"`
}

// EnvironmentRules holds the keyword tables for one candidate label.
type EnvironmentRules struct {
	Label           string   `yaml:"label" json:"label"`
	AppNames        []string `yaml:"app_names,omitempty" json:"app_names,omitempty"`
	TitleSubstrings []string `yaml:"title_substrings,omitempty" json:"title_substrings,omitempty"`
	ContentKeywords []string `yaml:"content_keywords,omitempty" json:"content_keywords,omitempty"`
}

// rulesSchema validates the shape of an environment rules file. The label
// enum is derived from Labels so a typo in an override file fails at load,
// not as a silent never-matching rule.
var rulesSchema = fmt.Sprintf(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Velvet environment rules",
  "type": "object",
  "required": ["environments"],
  "properties": {
    "environments": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["label"],
        "properties": {
          "label": {"type": "string", "enum": %s},
          "app_names": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "title_substrings": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "content_keywords": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`, labelEnum())

func labelEnum() string {
	enum, err := json.Marshal(Labels)
	if err != nil {
		panic(err)
	}
	return string(enum)
}

// ValidateRules checks rule file YAML against the schema.
func ValidateRules(content []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return fmt.Errorf("parsing rules YAML: %w", err)
	}
	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting rules to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rulesSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("running schema validation: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("rules schema violations: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// normalizeYAML converts yaml.v3's map[string]interface{} trees (and any
// nested map[interface{}]interface{}) into JSON-marshalable values.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

// ParseRuleFile validates and parses environment rules YAML.
func ParseRuleFile(content []byte) (*RuleFile, error) {
	if err := ValidateRules(content); err != nil {
		return nil, err
	}
	var rf RuleFile
	if err := yaml.Unmarshal(content, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}
	return &rf, nil
}

// DefaultRules returns the embedded default environment rule tables.
func DefaultRules() (*RuleFile, error) {
	return ParseRuleFile(rules.EnvironmentsYAML())
}

// LoadRules returns the embedded defaults, or the override file when path is
// non-empty. A missing override file is an error: an operator who points at
// a rules file expects it to be used.
func LoadRules(path string) (*RuleFile, error) {
	if path == "" {
		return DefaultRules()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	rf, err := ParseRuleFile(content)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rf, nil
}
