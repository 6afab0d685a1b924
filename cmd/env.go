package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"chapterd/archive"
	"chapterd/browser"
	"chapterd/config"
	"chapterd/downloader"
	"chapterd/engine"
	"chapterd/models"
	"chapterd/parser"
	"chapterd/sites"
	"chapterd/validation"

	"github.com/charmbracelet/log"
)

// env is everything a command needs, built from settings and flags.
type env struct {
	settings     *config.Settings
	settingsPath string
	catalog      *config.Catalog
	registry     *sites.Registry
	archive      *archive.Archive
	fetcher      *downloader.Fetcher
	browserOpts  browser.Options
	logger       *log.Logger
}

func loadSettings(extra config.Options) (*config.Settings, string, error) {
	extra.IgnoreSettings = flagIgnoreConfig
	extra.Debug = flagDebug
	extra.Catalog = flagCatalog
	extra.PicturesDir = flagPicturesDir
	extra.LogDir = flagLogDir

	s, used, err := config.LoadMerged(flagSettings, extra)
	if err != nil {
		return nil, "", err
	}
	setupLogging(s.LogLevel)
	return s, used, nil
}

func setupLogging(level string) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func newEnv(extra config.Options) (*env, error) {
	s, used, err := loadSettings(extra)
	if err != nil {
		return nil, err
	}
	logger := log.WithPrefix("[CLI]")
	logger.Debugf("Using settings %s", used)

	cat, err := config.LoadCatalog(s.Catalog)
	if err != nil {
		return nil, err
	}

	client, err := downloader.NewHTTPClient(downloader.HTTPClientOptions{UserAgent: s.UserAgent})
	if err != nil {
		return nil, err
	}
	registry, err := sites.NewRegistry(sites.Builtin(), s.Sites, sites.Deps{
		Pages:     client,
		Transport: client.Transport(),
		UserAgent: client.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	root, err := parser.ExpandPath(s.PicturesDir)
	if err != nil {
		return nil, fmt.Errorf("pictures dir: %w", err)
	}

	bopts := browser.DefaultOptions()
	bopts.Headless = s.Headless
	bopts.WindowWidth, bopts.WindowHeight = s.WindowWidth, s.WindowHeight
	bopts.PageLoadTimeout = s.PageLoadTimeout
	bopts.ScriptTimeout = s.ScriptTimeout

	return &env{
		settings:     s,
		settingsPath: used,
		catalog:      cat,
		registry:     registry,
		archive:      archive.New(root),
		fetcher: downloader.NewFetcher(downloader.FetcherOptions{
			UserAgent:   s.UserAgent,
			Timeout:     s.ImageTimeout,
			Delay:       s.ImageDelay,
			FallbackExt: s.FallbackExt,
		}),
		browserOpts: bopts,
		logger:      logger,
	}, nil
}

// titles returns the valid catalog titles, optionally restricted to slugs.
func (e *env) titles(slugs []string) ([]models.Title, error) {
	selected := e.catalog.Titles
	if len(slugs) > 0 {
		selected = nil
		for _, slug := range slugs {
			t, ok := e.catalog.Find(slug)
			if !ok {
				return nil, fmt.Errorf("title %q is not in the catalog %s", slug, e.catalog.Path)
			}
			selected = append(selected, *t)
		}
	}

	valid, problems := validation.FilterValid(selected, nil)
	for _, p := range problems {
		e.logger.Warnf("Skipping catalog entry: %v", p)
	}
	return valid, nil
}

func (e *env) launcher() engine.Launcher {
	opts := e.browserOpts
	return func(ctx context.Context) (engine.Renderer, error) {
		s, err := browser.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (e *env) fetchers() engine.FetcherFactory {
	return func(timeout time.Duration) engine.ImageFetcher {
		return e.fetcher.WithTimeout(timeout)
	}
}

// saveRepaired writes URL changes back to the catalog, once, at the end of a run.
func (e *env) saveRepaired(updated []models.Title) error {
	changed := e.catalog.Apply(updated)
	if changed == 0 {
		return nil
	}
	if err := config.SaveCatalog(e.catalog); err != nil {
		return err
	}
	e.logger.Infof("Saved %d updated series URLs to %s", changed, e.catalog.Path)
	return nil
}
