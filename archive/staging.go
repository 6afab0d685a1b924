package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Staging is a chapter being materialized next to its final location.
type Staging struct {
	Dir   string
	Final string
	arch  *Archive
	done  bool
}

// Stage creates an empty staging directory for chapter n, replacing any leftover one.
func (a *Archive) Stage(slug string, n int) (*Staging, error) {
	final := a.ChapterDir(slug, n)
	dir := final + stagingSuffix

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear staging %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create staging %s: %w", dir, err)
	}
	return &Staging{Dir: dir, Final: final, arch: a}, nil
}

// WriteMarker writes the provenance marker for the named adapter.
func (s *Staging) WriteMarker(name string) error {
	return os.WriteFile(filepath.Join(s.Dir, MarkerFile), []byte(Marker(name)+"\n"), 0644)
}

// Images counts the image files in staging.
func (s *Staging) Images() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == MarkerFile || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n++
	}
	return n, nil
}

// Commit renames staging into its final location. When replace is set an existing
// chapter is swapped out first and removed only after the new one is in place.
func (s *Staging) Commit(replace bool) error {
	if s.done {
		return errors.New("staging already finished")
	}
	if _, err := os.Stat(filepath.Join(s.Dir, MarkerFile)); err != nil {
		return fmt.Errorf("refusing to commit %s without marker: %w", s.Dir, err)
	}

	_, err := os.Stat(s.Final)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if !exists {
		if err := os.Rename(s.Dir, s.Final); err != nil {
			return fmt.Errorf("commit %s: %w", s.Final, err)
		}
		s.done = true
		return nil
	}

	if !replace {
		return fmt.Errorf("%w: %s", ErrExists, s.Final)
	}

	old := s.Final + oldSuffix
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clear %s: %w", old, err)
	}
	if err := os.Rename(s.Final, old); err != nil {
		return fmt.Errorf("move aside %s: %w", s.Final, err)
	}
	if err := os.Rename(s.Dir, s.Final); err != nil {
		if rbErr := os.Rename(old, s.Final); rbErr != nil {
			s.arch.logger.Errorf("Failed to restore %s: %v", s.Final, rbErr)
		}
		return fmt.Errorf("commit %s: %w", s.Final, err)
	}
	s.done = true

	if err := os.RemoveAll(old); err != nil {
		s.arch.logger.Warnf("Replaced %s but could not remove previous copy: %v", s.Final, err)
	}
	return nil
}

// Discard removes staging. It is a no-op after Commit.
func (s *Staging) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	return os.RemoveAll(s.Dir)
}
