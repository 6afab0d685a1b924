package engine

import (
	"context"

	"chapterd/models"
)

// ExtractionEvent describes a rendered chapter page that did not yield a usable image list.
type ExtractionEvent struct {
	RunID     string
	Slug      string
	Site      models.Site
	Chapter   int
	Attempt   int
	URL       string
	HTML      string
	Partial   bool
	Images    int
	Threshold int
	Err       error
}

// Observer is notified of failed or low-count extractions. It must not block for long.
type Observer interface {
	ExtractionFailed(ev ExtractionEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ExtractionEvent)

func (f ObserverFunc) ExtractionFailed(ev ExtractionEvent) { f(ev) }

// Recorder stores chapter outcomes.
type Recorder interface {
	Record(ctx context.Context, runID, slug string, res models.ChapterResult) error
}
