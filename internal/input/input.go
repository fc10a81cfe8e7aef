package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/shadowscore/internal/model"
)

// collection is the object form of a findings file: {findings: [...]}
type collection struct {
	Findings []model.RawFinding `json:"findings" yaml:"findings"`
}

// LoadFindings reads a JSON or YAML findings file.
// Both a bare sequence and an object with a "findings" key are accepted.
func LoadFindings(path string) ([]model.RawFinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	findings, err := ParseFindings(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return findings, nil
}

// ParseFindings decodes findings; ext selects the format (".json", ".yaml", ".yml"),
// anything else is sniffed from the content.
func ParseFindings(data []byte, ext string) ([]model.RawFinding, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []model.RawFinding{}, nil
	}

	isJSON := strings.EqualFold(ext, ".json") || (ext == "" && (trimmed[0] == '[' || trimmed[0] == '{'))
	if isJSON {
		return parseJSON(trimmed)
	}
	return parseYAML(trimmed)
}

func parseJSON(data []byte) ([]model.RawFinding, error) {
	if data[0] == '[' {
		var list []model.RawFinding
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse JSON findings: %w", err)
		}
		return list, nil
	}

	var c collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse JSON findings: %w", err)
	}
	if c.Findings == nil {
		return nil, fmt.Errorf("parse JSON findings: object has no \"findings\" key")
	}
	return c.Findings, nil
}

func parseYAML(data []byte) ([]model.RawFinding, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse YAML findings: %w", err)
	}
	if len(node.Content) == 0 {
		return []model.RawFinding{}, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var list []model.RawFinding
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("parse YAML findings: %w", err)
		}
		return list, nil

	case yaml.MappingNode:
		var c collection
		if err := root.Decode(&c); err != nil {
			return nil, fmt.Errorf("parse YAML findings: %w", err)
		}
		if c.Findings == nil {
			return nil, fmt.Errorf("parse YAML findings: mapping has no \"findings\" key")
		}
		return c.Findings, nil
	}

	return nil, fmt.Errorf("parse YAML findings: expected a sequence or a mapping with \"findings\"")
}
