package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chapterd/models"
	"chapterd/parser"

	"github.com/charmbracelet/log"
)

// DefaultCatalogPath is where the catalog lives when no path is configured.
const DefaultCatalogPath = "~/.config/chapterd/catalog.json"

// Catalog is the in-memory form of the catalog file:
// a mapping from title slug to an ordered list of sources.
type Catalog struct {
	Path   string
	Titles []models.Title
}

// Find returns the title with the given slug.
func (c *Catalog) Find(slug string) (*models.Title, bool) {
	for i := range c.Titles {
		if c.Titles[i].Slug == slug {
			return &c.Titles[i], true
		}
	}
	return nil, false
}

// Apply overwrites the sources of every title present in updated.
// Titles missing from the catalog are ignored.
func (c *Catalog) Apply(updated []models.Title) int {
	changed := 0
	for _, u := range updated {
		t, ok := c.Find(u.Slug)
		if !ok {
			continue
		}
		for i := range t.Sources {
			if i < len(u.Sources) && sameSite(t.Sources[i].Site, u.Sources[i].Site) && t.Sources[i].URL != u.Sources[i].URL {
				t.Sources[i].URL = u.Sources[i].URL
				changed++
			}
		}
	}
	return changed
}

func sameSite(a, b models.Site) bool {
	return strings.EqualFold(strings.TrimSpace(string(a)), strings.TrimSpace(string(b)))
}

// LoadCatalog reads the catalog file, creating an empty one if it does not exist yet.
func LoadCatalog(path string) (*Catalog, error) {
	location, err := verifyCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("error verifying catalog file: %w", err)
	}

	byteValues, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}

	raw := map[string][]models.Source{}
	if err := json.Unmarshal(byteValues, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling catalog: %w", err)
	}

	slugs := make([]string, 0, len(raw))
	for slug := range raw {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	cat := &Catalog{Path: location}
	for _, slug := range slugs {
		cat.Titles = append(cat.Titles, models.Title{Slug: slug, Sources: raw[slug]})
	}

	log.WithPrefix("[Config]").Debugf("Loaded %d titles from %s", len(cat.Titles), location)
	return cat, nil
}

// SaveCatalog writes the catalog back to its file.
// The write goes through a temporary file so a crash never leaves a truncated catalog.
func SaveCatalog(cat *Catalog) error {
	location, err := parser.ExpandPath(cat.Path)
	if err != nil {
		return err
	}

	raw := make(map[string][]models.Source, len(cat.Titles))
	for _, t := range cat.Titles {
		raw[t.Slug] = t.Sources
	}

	jsonData, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	tmp := location + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing catalog: %w", err)
	}
	if err := os.Rename(tmp, location); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error replacing catalog: %w", err)
	}
	return nil
}

// check the catalog directory exists or create it
func verifyConfigDirectory(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
		log.WithPrefix("[Config]").Infof("Directory %s created", dir)
	} else if err != nil {
		return fmt.Errorf("error checking directory %s: %w", dir, err)
	}
	return nil
}

// check the catalog file exists or create an empty one
func verifyCatalogFile(path string) (string, error) {
	if path == "" {
		path = DefaultCatalogPath
	}
	location, err := parser.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("cannot expand catalog path: %w", err)
	}

	if err := verifyConfigDirectory(filepath.Dir(location)); err != nil {
		return "", err
	}

	_, err = os.Stat(location)
	if os.IsNotExist(err) {
		log.WithPrefix("[Config]").Infof("Catalog file not found, creating empty catalog at '%s'", location)
		if err := os.WriteFile(location, []byte("{}\n"), 0644); err != nil {
			return "", fmt.Errorf("error creating catalog file: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("error checking file existence: %w", err)
	}

	return location, nil
}
