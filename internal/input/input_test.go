package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindings_Forms(t *testing.T) {
	cases := map[string]struct {
		data string
		ext  string
	}{
		"json list":    {`[{"id":"H-01","text":"Reentrancy in withdraw","severity":"High"}]`, ".json"},
		"json object":  {`{"findings":[{"id":"H-01","text":"Reentrancy in withdraw","severity":"High"}]}`, ".json"},
		"yaml list":    {"- id: H-01\n  text: Reentrancy in withdraw\n  severity: High\n", ".yaml"},
		"yaml object":  {"findings:\n  - id: H-01\n    text: Reentrancy in withdraw\n    severity: High\n", ".yml"},
		"sniffed json": {`[{"id":"H-01","text":"Reentrancy in withdraw","severity":"High"}]`, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFindings([]byte(tc.data), tc.ext)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "H-01", got[0].ID)
			assert.Equal(t, "Reentrancy in withdraw", got[0].Text)
			assert.Equal(t, "High", got[0].Severity)
		})
	}
}

func TestParseFindings_Empty(t *testing.T) {
	got, err := ParseFindings([]byte("  \n"), ".yaml")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ParseFindings([]byte("[]"), ".json")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseFindings_Errors(t *testing.T) {
	_, err := ParseFindings([]byte(`{"items":[]}`), ".json")
	assert.Error(t, err)

	_, err = ParseFindings([]byte("just a string"), ".yaml")
	assert.Error(t, err)

	_, err = ParseFindings([]byte(`[{"id": }`), ".json")
	assert.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`jobs:
  - contest: c1
    agent: alice
    predicted: alice/c1.yaml
    actual: /abs/c1-actual.json
`), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Jobs, 1)
	assert.Equal(t, filepath.Join(dir, "alice", "c1.yaml"), m.Jobs[0].Predicted)
	assert.Equal(t, "/abs/c1-actual.json", m.Jobs[0].Actual)
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("jobs: []\n"), 0644))
	_, err := LoadManifest(empty)
	assert.Error(t, err)

	missing := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("jobs:\n  - contest: c1\n    agent: alice\n"), 0644))
	_, err = LoadManifest(missing)
	assert.ErrorContains(t, err, "job 1")
}
