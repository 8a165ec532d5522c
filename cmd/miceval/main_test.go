package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("results_file: [unclosed"), 0644))
	_, err := loadConfig(broken)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"max_workers": 0}`), 0644))
	_, err = loadConfig(invalid)
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()

	path := filepath.Join(dir, "miceval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("results_file: out/custom.json\n"), 0644))

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "out/custom.json", config.ResultsFile)

	config, err = loadConfig(filepath.Join("..", "..", "configs", "miceval.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./samples", config.BaseDir)

	config, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "evaluation_results.json", config.ResultsFile)
}
