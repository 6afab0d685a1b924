package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chapterd/browser"
	"chapterd/models"
	"chapterd/retry"
	"chapterd/sites"
)

// acquireRange acquires chapters local+1..online in ascending order. It stops at the
// terminal signal, on a launch failure or when ctx is done. Other failures skip the chapter.
func (e *Engine) acquireRange(ctx context.Context, tr *titleRun, local, online int) {
	defer tr.slot.release()

	total := online - local
	for n := local + 1; n <= online; n++ {
		if ctx.Err() != nil {
			tr.report.Err = ctx.Err().Error()
			return
		}

		e.board.Update(tr.id, func(t *Task) {
			t.Status = StatusDownloading
			t.Chapter = n
			t.Done = n - local - 1
			t.Total = total
			t.Images, t.ImagesTotal = 0, 0
			t.Message = fmt.Sprintf("Chapter %d (%d of %d)", n, n-local, total)
		})
		tr.logger.Infof("Starting chapter %d (%d/%d) from %s", n, n-local, total, tr.src.Site)

		res, err := e.acquireChapter(ctx, tr, n)
		tr.report.Chapters = append(tr.report.Chapters, res)
		e.record(ctx, tr.slug, res)

		switch {
		case err == nil:
			tr.logger.Infof("✓ Completed chapter %d (%d images)", n, res.Images)
		case errors.Is(err, ErrNoContent):
			tr.report.TerminalAt = n
			tr.logger.Infof("Chapter %d is not published yet, stopping: %v", n, err)
			return
		case errors.Is(err, browser.ErrLaunch):
			tr.report.Err = err.Error()
			tr.logger.Errorf("Render session unavailable, giving up on title: %v", err)
			return
		case ctx.Err() != nil:
			tr.report.Err = ctx.Err().Error()
			return
		default:
			tr.logger.Errorf("Failed chapter %d, moving on: %v", n, err)
		}
	}

	e.board.Update(tr.id, func(t *Task) { t.Done = total })
}

// acquireChapter runs the bounded attempt loop for chapter n.
func (e *Engine) acquireChapter(ctx context.Context, tr *titleRun, n int) (models.ChapterResult, error) {
	res := models.ChapterResult{Chapter: n, Source: tr.src.Site}

	existing, replace, err := e.archive.Lookup(tr.slug, n)
	if err != nil {
		res.Outcome = models.OutcomeFailed
		res.Err = err.Error()
		return res, err
	}
	if replace {
		tr.logger.Infof("Chapter %d exists from %q, it will be replaced", n, existing.Provenance)
	}
	res.Replaced = replace

	maxAttempts := tr.policy.MaxAttempts
	p := retry.Policy{
		MaxAttempts: maxAttempts,
		Backoff:     e.opts.Backoff,
		Terminal:    isTerminal,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			tr.logger.Warnf("Chapter %d failed (attempt %d/%d), retrying in %v: %v", n, attempt, maxAttempts, wait, err)
		},
	}

	images := 0
	err = retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		count, err := e.attempt(ctx, tr, n, attempt, replace)
		images = count
		return err
	})

	switch {
	case err == nil:
		res.Outcome = models.OutcomeCommitted
		res.Images = images
	case errors.Is(err, ErrNoContent):
		res.Outcome = models.OutcomeTerminal
		res.Err = err.Error()
	default:
		res.Outcome = models.OutcomeFailed
		res.Err = err.Error()
	}
	return res, err
}

// extraction is a qualifying image list and the reader page it came from.
type extraction struct {
	pageURL string
	images  []string
}

// attempt renders each candidate reader URL until one yields more images than the
// threshold, then materializes it. A page that rendered fully but stayed at or below
// the threshold on every candidate is ErrNoContent.
func (e *Engine) attempt(ctx context.Context, tr *titleRun, n, attempt int, replace bool) (int, error) {
	r, err := tr.slot.get(ctx)
	if err != nil {
		return 0, err
	}
	if tr.policy.Isolated {
		defer tr.slot.release()
	}

	candidates := tr.adapter.ChapterURLs(tr.src.URL, n)
	if len(candidates) == 0 {
		return 0, fmt.Errorf("no reader URL for chapter %d", n)
	}

	mirrors, _ := tr.adapter.(sites.MirrorTracker)
	mirrorOf := func(u string) string {
		if mirrors == nil {
			return ""
		}
		return mirrors.MirrorOf(u)
	}

	var (
		found    *extraction
		rendered bool
		lowCount int
		errs     []error
		// group is the mirror of the previous candidate, allLow whether every
		// candidate on it rendered fully below the threshold.
		group  string
		allLow bool
	)
	for i, u := range candidates {
		if m := mirrorOf(u); i == 0 || m != group {
			if i > 0 && allLow {
				tr.logger.Debugf("Mirror %s rendered chapter %d below threshold, skipping %d other candidates", group, n, len(candidates)-i)
				break
			}
			group, allLow = m, true
		}

		page, err := r.Render(ctx, u, tr.adapter.Readiness())
		if err != nil {
			if errors.Is(err, browser.ErrCrashed) {
				tr.slot.discard()
				return 0, err
			}
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			tr.logger.Debugf("Render of %s failed: %v", u, err)
			errs = append(errs, err)
			allLow = false
			continue
		}

		if err := tr.adapter.Inspect(page); err != nil {
			e.notify(tr, n, attempt, page, 0, err)
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			allLow = false
			continue
		}

		urls := tr.adapter.ExtractChapterImages(page)
		if len(urls) > tr.policy.Threshold {
			found = &extraction{pageURL: u, images: urls}
			break
		}

		e.notify(tr, n, attempt, page, len(urls), nil)
		if page.Partial {
			errs = append(errs, fmt.Errorf("%s: partial page yielded %d images", u, len(urls)))
			allLow = false
			continue
		}
		rendered = true
		lowCount = max(lowCount, len(urls))
	}

	if found != nil {
		if mirrors != nil {
			mirrors.Worked(found.pageURL)
		}
		tr.logger.Infof("Chapter %d: found %d images on %s", n, len(found.images), found.pageURL)
		return e.materialize(ctx, tr, n, found, replace)
	}
	if rendered {
		return 0, fmt.Errorf("%w: chapter %d yielded %d images (threshold %d)", ErrNoContent, n, lowCount, tr.policy.Threshold)
	}

	err = errors.Join(errs...)
	if errors.Is(err, sites.ErrStale) && !tr.repairUsed {
		tr.repairUsed = true
		e.repair(ctx, tr)
	}
	return 0, err
}

// repair re-resolves the acting source's series URL once per title.
func (e *Engine) repair(ctx context.Context, tr *titleRun) {
	u, err := tr.adapter.ResolveSeriesURL(ctx, *tr.src, tr.slug)
	if err != nil {
		tr.logger.Warnf("Could not repair series URL for %s: %v", tr.src.Site, err)
		return
	}
	if u == tr.src.URL {
		return
	}
	tr.logger.Infof("Repaired series URL %s -> %s", tr.src.URL, u)
	tr.src.URL = u
	tr.report.Repaired = append(tr.report.Repaired, *tr.src)
}

// materialize downloads the images into staging and commits the chapter atomically.
// Staging is discarded on every path that does not commit.
func (e *Engine) materialize(ctx context.Context, tr *titleRun, n int, ex *extraction, replace bool) (int, error) {
	staging, err := e.archive.Stage(tr.slug, n)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := staging.Discard(); err != nil {
			tr.logger.Warnf("Failed to discard staging for chapter %d: %v", n, err)
		}
	}()

	fetcher := e.fetchers(tr.policy.ImageTimeout)
	if _, err := fetcher.FetchAll(ctx, ex.images, staging.Dir, ex.pageURL, func(done, total int) {
		e.board.Update(tr.id, func(t *Task) {
			t.Images = done
			t.ImagesTotal = total
		})
	}); err != nil {
		return 0, fmt.Errorf("download images: %w", err)
	}

	count, err := staging.Images()
	if err != nil {
		return 0, err
	}
	// A chapter is committed complete or not at all.
	if count < len(ex.images) {
		return 0, fmt.Errorf("only %d of %d images downloaded for chapter %d", count, len(ex.images), n)
	}

	if err := staging.WriteMarker(tr.adapter.Name()); err != nil {
		return 0, fmt.Errorf("write marker: %w", err)
	}
	if err := staging.Commit(replace); err != nil {
		return 0, err
	}
	return count, nil
}

func (e *Engine) notify(tr *titleRun, n, attempt int, page *browser.Page, images int, err error) {
	if err != nil {
		tr.logger.Warnf("Chapter %d attempt %d: %s: %v", n, attempt, page.URL, err)
	} else {
		tr.logger.Warnf("Chapter %d attempt %d: %s yielded %d images (threshold %d)", n, attempt, page.URL, images, tr.policy.Threshold)
	}
	if e.observer == nil {
		return
	}
	e.observer.ExtractionFailed(ExtractionEvent{
		RunID:     e.opts.RunID,
		Slug:      tr.slug,
		Site:      tr.src.Site,
		Chapter:   n,
		Attempt:   attempt,
		URL:       page.URL,
		HTML:      page.HTML,
		Partial:   page.Partial,
		Images:    images,
		Threshold: tr.policy.Threshold,
		Err:       err,
	})
}
