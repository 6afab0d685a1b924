package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"chapterd/models"
)

// TitleError ties validation problems to a catalog entry.
type TitleError struct {
	Slug string
	Errs []error
}

func (e *TitleError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("title %q: %s", e.Slug, strings.Join(msgs, "; "))
}

func (e *TitleError) Unwrap() []error { return e.Errs }

// ValidateTitle checks one catalog entry. enabled reports whether a site has an adapter.
func ValidateTitle(t models.Title, enabled func(models.Site) bool) error {
	var errs []error

	switch {
	case strings.TrimSpace(t.Slug) == "":
		errs = append(errs, errors.New("slug is required"))
	case strings.ContainsAny(t.Slug, `/\`) || t.Slug == "." || t.Slug == "..":
		errs = append(errs, errors.New("slug must be a plain directory name"))
	}

	if len(t.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}

	seen := make(map[models.Site]bool)
	for i, src := range t.Sources {
		site, err := models.ParseSite(string(src.Site))
		if err != nil {
			errs = append(errs, fmt.Errorf("source %d: %w", i+1, err))
			continue
		}
		if seen[site] {
			errs = append(errs, fmt.Errorf("source %d: site %s listed twice", i+1, site))
		}
		seen[site] = true

		if enabled != nil && !enabled(site) {
			errs = append(errs, fmt.Errorf("source %d: site %s is disabled", i+1, site))
		}
		if src.URL != "" {
			if err := validateURL(src.URL); err != nil {
				errs = append(errs, fmt.Errorf("source %d: %w", i+1, err))
			}
		}
	}

	if len(errs) > 0 {
		return &TitleError{Slug: t.Slug, Errs: errs}
	}
	return nil
}

// FilterValid splits titles into the ones that pass validation and the problems found.
// Site names are normalised in the returned titles.
func FilterValid(titles []models.Title, enabled func(models.Site) bool) ([]models.Title, []error) {
	var (
		valid    []models.Title
		problems []error
	)
	for _, t := range titles {
		if err := ValidateTitle(t, enabled); err != nil {
			problems = append(problems, err)
			continue
		}
		t.Sources = append([]models.Source(nil), t.Sources...)
		for i := range t.Sources {
			site, _ := models.ParseSite(string(t.Sources[i].Site))
			t.Sources[i].Site = site
		}
		valid = append(valid, t)
	}
	return valid, problems
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
