package browser

import "time"

// Readiness describes what "loaded" means for a page.
type Readiness struct {
	// Selector is awaited before scrolling. Empty skips the wait.
	Selector        string
	SelectorTimeout time.Duration
	// ScrollSteps > 0 scrolls to trigger lazy loading.
	ScrollSteps int
	ScrollPause time.Duration
	// Settle is slept after everything else.
	Settle time.Duration
}

// LazyScroll is the readiness used for readers that only load images as they scroll into view.
func LazyScroll(selector string, settle time.Duration) Readiness {
	return Readiness{
		Selector:    selector,
		ScrollSteps: 24,
		ScrollPause: 250 * time.Millisecond,
		Settle:      settle,
	}
}

func (r Readiness) selectorTimeout(fallback time.Duration) time.Duration {
	if r.SelectorTimeout > 0 {
		return r.SelectorTimeout
	}
	return fallback
}

func (r Readiness) scrollPause() time.Duration {
	if r.ScrollPause > 0 {
		return r.ScrollPause
	}
	return 250 * time.Millisecond
}
