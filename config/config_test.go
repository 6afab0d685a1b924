package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chapterd/config"
	"chapterd/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalogCreatesEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "catalog.json")
	cat, err := config.LoadCatalog(path)
	require.NoError(t, err)
	assert.Empty(t, cat.Titles)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCatalogRoundTripAndApply(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "solo-leveling": [
    {"site": "Asura"},
    {"site": "kunmanga", "url": "https://kunmanga.test/manga/solo-leveling/"}
  ],
  "kingdom": [{"site": "readkingdom", "name": "kingdom"}]
}`), 0644))

	cat, err := config.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Titles, 2)
	assert.Equal(t, "kingdom", cat.Titles[0].Slug, "titles are sorted by slug")

	solo, ok := cat.Find("solo-leveling")
	require.True(t, ok)
	assert.Equal(t, []models.Site{"Asura", models.SiteKunManga}, []models.Site{solo.Sources[0].Site, solo.Sources[1].Site})

	changed := cat.Apply([]models.Title{
		{Slug: "solo-leveling", Sources: []models.Source{
			{Site: models.SiteAsura, URL: "https://asura.test/series/solo-leveling-abc"},
			{Site: models.SiteKunManga, URL: "https://kunmanga.test/manga/solo-leveling/"},
		}},
		{Slug: "unknown", Sources: []models.Source{{Site: models.SiteAsura, URL: "https://x.test"}}},
	})
	assert.Equal(t, 1, changed)
	require.NoError(t, config.SaveCatalog(cat))

	again, err := config.LoadCatalog(path)
	require.NoError(t, err)
	solo, ok = again.Find("solo-leveling")
	require.True(t, ok)
	assert.Equal(t, "https://asura.test/series/solo-leveling-abc", solo.Sources[0].URL)
	kingdom, _ := again.Find("kingdom")
	assert.Equal(t, "kingdom", kingdom.Sources[0].Name)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMerged(t *testing.T) {
	t.Parallel()

	t.Run("missing file uses defaults", func(t *testing.T) {
		t.Parallel()
		s, used, err := config.LoadMerged(filepath.Join(t.TempDir(), "none.yaml"), config.Options{TitleWorkers: 3})
		require.NoError(t, err)
		assert.Equal(t, "(default settings in memory)", used)
		assert.Equal(t, 3, s.TitleWorkers)
		assert.Equal(t, 5, s.MaxAttempts)
	})

	t.Run("file then options then normalisation", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
pictures_dir: /srv/pictures
max_attempts: 0
image_timeout: 45s
fallback_ext: .PNG
sites:
  readkingdom:
    threshold: 6
    settle: 20s
  asura:
    disabled: true
`), 0644))

		s, used, err := config.LoadMerged(path, config.Options{Debug: true, LogDir: "/tmp/logs"})
		require.NoError(t, err)
		assert.Equal(t, path, used)
		assert.Equal(t, "/srv/pictures", s.PicturesDir)
		assert.Equal(t, "/tmp/logs", s.LogDir)
		assert.Equal(t, "debug", s.LogLevel)
		assert.Equal(t, 5, s.MaxAttempts)
		assert.Equal(t, 45*time.Second, s.ImageTimeout)
		assert.Equal(t, "png", s.FallbackExt)
		require.NotNil(t, s.Sites["readkingdom"].Threshold)
		assert.Equal(t, 6, *s.Sites["readkingdom"].Threshold)
		assert.Equal(t, 20*time.Second, s.Sites["readkingdom"].Settle)
		assert.True(t, s.Sites["asura"].Disabled)
	})

	t.Run("invalid site override", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sites:\n  yaksha:\n    max_attempts: -1\n"), 0644))
		_, _, err := config.LoadMerged(path, config.Options{})
		assert.Error(t, err)
	})

	t.Run("ignore settings", func(t *testing.T) {
		t.Parallel()
		s, used, err := config.LoadMerged("/does/not/matter.yaml", config.Options{IgnoreSettings: true, Snapshots: true})
		require.NoError(t, err)
		assert.Equal(t, "(ignored settings)", used)
		assert.True(t, s.Snapshots)
	})
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	def := config.DefaultSettings()
	require.NoError(t, config.SaveSettings(def, path))

	s, _, err := config.LoadMerged(path, config.Options{})
	require.NoError(t, err)
	assert.Equal(t, def.PicturesDir, s.PicturesDir)
	assert.Equal(t, def.PageLoadTimeout, s.PageLoadTimeout)
}
