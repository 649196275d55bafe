package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

const peopleCSV = `name,city,country
Jon Smith,bostn,indya
John Smith,Boston,India
Mary Jones,New York,germany
`

type cliTestEnv struct {
	dir        string
	configPath string
	inputPath  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, "CLEANER_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}

	dir := t.TempDir()
	t.Chdir(dir)

	config := `
references:
  sets:
    country:
      path: ""
      values: ["India", "Germany"]
    city:
      path: ""
      values: ["Boston", "New York"]
    name:
      path: ""
      values: ["john smith"]
overrides:
  backend: file
  mappings_path: ` + filepath.Join(dir, "mappings.json") + `
  whitelist_path: ` + filepath.Join(dir, "whitelist.txt") + `
changelog:
  sinks: [memory]
`
	configPath := filepath.Join(dir, "cleaner.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	inputPath := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte(peopleCSV), 0o600))

	return &cliTestEnv{dir: dir, configPath: configPath, inputPath: inputPath}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCanonicalizeCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	output := filepath.Join(env.dir, "clean.csv")

	_, stderr, err := env.run(t, "canonicalize", env.inputPath, "-o", output, "--run-id", "run-1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Run run-1")
	assert.Contains(t, stderr, "city_canonical")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "city_canonical")
	assert.Contains(t, lines[0], "country_canonical")
	assert.Contains(t, lines[1], "Boston")
	assert.Contains(t, lines[3], "Germany")
}

func TestCanonicalizeCommand_Stdout(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "canonicalize", env.inputPath)
	require.NoError(t, err)
	header, _, _ := strings.Cut(stdout, "\n")
	assert.Contains(t, header, "city,city_canonical")
	assert.Contains(t, header, "country,country_canonical")
}

func TestCanonicalizeCommand_UnsupportedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.dir, "people.txt")
	require.NoError(t, os.WriteFile(path, []byte(peopleCSV), 0o600))

	_, _, err := env.run(t, "canonicalize", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDuplicatesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "duplicates", env.inputPath,
		"--primary", "name", "--secondary", "city", "--canonicalize")
	require.NoError(t, err)

	var out duplicatesOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, 0, out.Pairs[0].RowI)
	assert.Equal(t, 1, out.Pairs[0].RowJ)
	assert.Equal(t, 85.0, out.Threshold)
	assert.False(t, out.Partial)
}

func TestDuplicatesCommand_PairsCSV(t *testing.T) {
	env := setupCLITestEnv(t)
	output := filepath.Join(env.dir, "pairs.csv")

	_, stderr, err := env.run(t, "duplicates", env.inputPath,
		"--primary", "name", "--secondary", "city", "--canonicalize", "--threshold", "90", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, stderr, "1 pair(s) written")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "row_i,row_j,score\n0,1,100.00\n", string(data))
}

func TestDuplicatesCommand_Errors(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing primary",
			args: []string{"duplicates", env.inputPath},
			want: `required flag(s) "primary" not set`,
		},
		{
			name: "unknown column",
			args: []string{"duplicates", env.inputPath, "--primary", "surname"},
			want: `column "surname" not found`,
		},
		{
			name: "bad blocking recipe",
			args: []string{"duplicates", env.inputPath, "--primary", "name", "--blocking", "name"},
			want: "blocking",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProfileCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "profile", env.inputPath)
	require.NoError(t, err)

	var report struct {
		Rows    int `json:"rows"`
		Columns int `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 3, report.Columns)
}

func TestOverrideCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "override", "set", "Bostn", "Boston")
	require.NoError(t, err)
	var entry domain.OverrideEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entry))
	assert.Equal(t, "Boston", entry.Canonical)

	// Every invocation builds a fresh engine, so the list reads the file back.
	stdout, _, err = env.run(t, "override", "list")
	require.NoError(t, err)
	var entries []domain.OverrideEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Boston", entries[0].Canonical)

	_, err = os.Stat(filepath.Join(env.dir, "mappings.json"))
	require.NoError(t, err)

	_, _, err = env.run(t, "override", "remove", "bostn")
	require.NoError(t, err)

	_, _, err = env.run(t, "override", "remove", "bostn")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWhitelistCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run(t, "whitelist", "add", "acme")
	require.NoError(t, err)

	stdout, _, err := env.run(t, "whitelist", "list")
	require.NoError(t, err)
	var values []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &values))
	assert.Equal(t, []string{"acme"}, values)

	_, _, err = env.run(t, "whitelist", "remove", "acme")
	require.NoError(t, err)

	stdout, _, err = env.run(t, "whitelist", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", stdout)
}

func TestReferencesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "references")
	require.NoError(t, err)

	var out referencesOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	sizes := make(map[domain.FieldType]int, len(out.Sets))
	for _, s := range out.Sets {
		sizes[s.FieldType] = s.Values
	}
	assert.Equal(t, map[domain.FieldType]int{
		domain.FieldTypeName:    1,
		domain.FieldTypeCity:    2,
		domain.FieldTypeCountry: 2,
	}, sizes)
	assert.False(t, out.LoadedAt.IsZero())
}

func TestMissingConfigFile(t *testing.T) {
	env := setupCLITestEnv(t)
	env.configPath = filepath.Join(env.dir, "missing.yaml")

	_, _, err := env.run(t, "references")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "exact=2 fuzzy=1", formatCounts(map[string]int{"fuzzy": 1, "exact": 2}))
	assert.Empty(t, formatCounts(nil))
}
