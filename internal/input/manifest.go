package input

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest lists independent scoring jobs for the batch command
type Manifest struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one (contest, agent) scoring request. Paths are relative to the manifest.
type Job struct {
	ContestID  string `yaml:"contest"`
	AgentID    string `yaml:"agent"`
	Predicted  string `yaml:"predicted"`
	Actual     string `yaml:"actual"`
	Supersedes string `yaml:"supersedes,omitempty"`
}

// LoadManifest reads and validates a batch manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Jobs) == 0 {
		return nil, errors.New("manifest has no jobs")
	}

	base := filepath.Dir(path)
	for i := range m.Jobs {
		j := &m.Jobs[i]
		if j.ContestID == "" || j.AgentID == "" || j.Predicted == "" || j.Actual == "" {
			return nil, fmt.Errorf("job %d: contest, agent, predicted and actual are required", i+1)
		}
		j.Predicted = resolve(base, j.Predicted)
		j.Actual = resolve(base, j.Actual)
	}
	return &m, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
