package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"chapterd/config"
	"chapterd/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "check", "history", "config", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "chapterd ")
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pictures_dir:")
	assert.Contains(t, buf.String(), "Settings created at:")
	flagSettings = ""
}

func TestEnvTitlesFilter(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalog, []byte(`{
  "foo": [{"site": "yaksha", "url": "https://yaksha.test/manga/foo/"}],
  "bar": [{"site": "nowhere"}]
}`), 0644))

	flagIgnoreConfig = true
	flagCatalog = catalog
	flagPicturesDir = filepath.Join(dir, "pictures")
	defer func() {
		flagIgnoreConfig = false
		flagCatalog = ""
		flagPicturesDir = ""
	}()

	e, err := newEnv(config.Options{})
	require.NoError(t, err)

	all, err := e.titles(nil)
	require.NoError(t, err)
	require.Len(t, all, 1, "invalid entries are skipped")
	assert.Equal(t, "foo", all[0].Slug)

	_, err = e.titles([]string{"missing"})
	assert.Error(t, err)

	changed := []models.Title{{Slug: "foo", Sources: []models.Source{{Site: models.SiteYaksha, URL: "https://yaksha.test/manga/foo-2/"}}}}
	require.NoError(t, e.saveRepaired(changed))

	data, err := os.ReadFile(catalog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "foo-2")
}
