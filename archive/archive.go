// Package archive owns the on-disk chapter layout:
//
//	{root}/{slug}/chapter-{N}/{index:03d}.{ext}
//	{root}/{slug}/chapter-{N}/source.txt
//
// Chapters are written into a staging directory next to their final location
// and renamed into place, so a final chapter directory is either absent or complete.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"chapterd/models"

	"github.com/charmbracelet/log"
)

// MarkerFile is the provenance marker inside every committed chapter.
const MarkerFile = "source.txt"

const (
	stagingSuffix = "_tmp"
	oldSuffix     = "_old"
)

var (
	chapterDirRe  = regexp.MustCompile(`^chapter-(\d+)$`)
	leftoverDirRe = regexp.MustCompile(`^(chapter-\d+)_(tmp|old)$`)

	// ErrExists is returned when committing over a chapter that was not flagged for replacement.
	ErrExists = errors.New("chapter already exists")
)

// Marker returns the provenance line written for an adapter name.
func Marker(name string) string {
	return "Downloaded from " + name
}

// Archive is the pictures tree.
type Archive struct {
	root   string
	logger *log.Logger
}

// New returns an Archive rooted at root. The directory is created lazily.
func New(root string) *Archive {
	return &Archive{root: root, logger: log.WithPrefix("[Archive]")}
}

// Root returns the pictures directory.
func (a *Archive) Root() string { return a.root }

// TitleDir returns the directory of a title.
func (a *Archive) TitleDir(slug string) string {
	return filepath.Join(a.root, slug)
}

// ChapterDir returns the final directory of a chapter.
func (a *Archive) ChapterDir(slug string, n int) string {
	return filepath.Join(a.root, slug, models.ChapterDirName(n))
}

// Chapter is one committed (or foreign) chapter directory found on disk.
type Chapter struct {
	Number int
	Path   string
	// Provenance is the trimmed first line of the marker, empty when there is none.
	Provenance string
}

// ProducedBy reports whether the chapter carries the marker of the named adapter.
func (c Chapter) ProducedBy(name string) bool {
	return c.Provenance != "" && c.Provenance == Marker(name)
}

// Scan lists the chapter directories of a title in ascending order.
// A title without a directory has no chapters.
func (a *Archive) Scan(slug string) ([]Chapter, error) {
	entries, err := os.ReadDir(a.TitleDir(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.TitleDir(slug), err)
	}

	var chapters []Chapter
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := chapterDirRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		dir := filepath.Join(a.TitleDir(slug), e.Name())
		prov, err := ReadMarker(dir)
		if err != nil {
			a.logger.Warnf("Unreadable marker in %s: %v", dir, err)
		}
		chapters = append(chapters, Chapter{Number: n, Path: dir, Provenance: prov})
	}

	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	return chapters, nil
}

// LocalLatest returns the highest chapter carrying the named adapter's marker, or 0.
// Chapters from other adapters or without a marker do not count.
func (a *Archive) LocalLatest(slug, name string) (int, error) {
	chapters, err := a.Scan(slug)
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, c := range chapters {
		if c.ProducedBy(name) && c.Number > latest {
			latest = c.Number
		}
	}
	return latest, nil
}

// Lookup returns the chapter directory for n, if present.
func (a *Archive) Lookup(slug string, n int) (Chapter, bool, error) {
	dir := a.ChapterDir(slug, n)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return Chapter{}, false, nil
	}
	if err != nil {
		return Chapter{}, false, err
	}
	if !info.IsDir() {
		return Chapter{}, false, fmt.Errorf("%s is not a directory", dir)
	}
	prov, err := ReadMarker(dir)
	if err != nil {
		return Chapter{}, true, err
	}
	return Chapter{Number: n, Path: dir, Provenance: prov}, true, nil
}

// ReadMarker returns the trimmed first line of dir's marker, or "" when there is none.
func ReadMarker(dir string) (string, error) {
	f, err := os.Open(filepath.Join(dir, MarkerFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}

// CleanupLeftovers removes staging directories left by an interrupted run.
// A chapter-N_old whose chapter-N is missing was interrupted mid-swap and is restored.
func (a *Archive) CleanupLeftovers(slug string) ([]string, error) {
	titleDir := a.TitleDir(slug)
	entries, err := os.ReadDir(titleDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cleaned []string
	for _, e := range entries {
		m := leftoverDirRe.FindStringSubmatch(e.Name())
		if m == nil || !e.IsDir() {
			continue
		}
		path := filepath.Join(titleDir, e.Name())
		final := filepath.Join(titleDir, m[1])

		if m[2] == "old" {
			if _, err := os.Stat(final); errors.Is(err, os.ErrNotExist) {
				if err := os.Rename(path, final); err != nil {
					return cleaned, fmt.Errorf("restore %s: %w", path, err)
				}
				a.logger.Warnf("Restored interrupted replacement %s", final)
				cleaned = append(cleaned, path)
				continue
			}
		}

		if err := os.RemoveAll(path); err != nil {
			return cleaned, fmt.Errorf("remove %s: %w", path, err)
		}
		a.logger.Infof("Removed leftover %s", path)
		cleaned = append(cleaned, path)
	}
	return cleaned, nil
}
