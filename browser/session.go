// Package browser owns the headless browser used to render JS-driven chapter pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"chapterd/cf"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateReady
	StateNavigating
	StateCrashed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateNavigating:
		return "navigating"
	case StateCrashed:
		return "crashed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrLaunch means no launch configuration could start the browser.
	ErrLaunch = errors.New("browser launch failed")
	// ErrCrashed means the browser died; the session must be discarded.
	ErrCrashed = errors.New("browser crashed")
	// ErrNotReady is returned when Render is called outside the Ready state.
	ErrNotReady = errors.New("browser session not ready")
)

// Options is the fixed fingerprint and timing of a session.
type Options struct {
	UserAgent       string
	Headless        bool
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
	// ExecPath overrides browser discovery.
	ExecPath string
}

// DefaultOptions matches the settings defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
		Headless:        true,
		WindowWidth:     1920,
		WindowHeight:    1080,
		PageLoadTimeout: 60 * time.Second,
		ScriptTimeout:   30 * time.Second,
	}
}

// Page is a snapshot of a rendered page.
type Page struct {
	URL     string
	HTML    string
	Partial bool // page load timed out and loading was stopped
}

// Session manages one chromedp browser with a disposable profile directory.
type Session struct {
	opts Options

	mu      sync.Mutex
	state   State
	ctx     context.Context
	cancel  context.CancelFunc
	profile string
	logger  *log.Logger
}

// launchConfigs are tried in order until one starts.
var launchConfigs = [][]chromedp.ExecAllocatorOption{
	{},
	{
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	},
}

// Launch starts a browser. Each launch gets its own profile directory,
// so concurrent or back-to-back sessions never share a lock file.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{opts: opts, state: StateIdle, logger: log.WithPrefix("[Browser]")}
	if err := s.launch(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) launch(parent context.Context) error {
	s.setState(StateLaunching)

	var errs []error
	for i, extra := range launchConfigs {
		profile, err := os.MkdirTemp("", "chapterd-profile-*")
		if err != nil {
			s.setState(StateIdle)
			return fmt.Errorf("%w: profile dir: %v", ErrLaunch, err)
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserAgent(s.opts.UserAgent),
			chromedp.Flag("headless", s.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(s.opts.WindowWidth, s.opts.WindowHeight),
			chromedp.UserDataDir(profile),
		)
		opts = append(opts, extra...)
		if s.opts.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

		// The first Run starts the browser process.
		err = chromedp.Run(browserCtx,
			emulation.SetDeviceMetricsOverride(int64(s.opts.WindowWidth), int64(s.opts.WindowHeight), 1, false),
		)
		if err == nil {
			s.mu.Lock()
			s.ctx = browserCtx
			s.cancel = func() {
				_ = chromedp.Cancel(browserCtx)
				cancelBrowser()
				cancelAlloc()
			}
			s.profile = profile
			s.state = StateReady
			s.mu.Unlock()
			s.logger.Debugf("Launched with configuration %d (profile %s)", i+1, profile)
			return nil
		}

		cancelBrowser()
		cancelAlloc()
		_ = os.RemoveAll(profile)
		s.logger.Warnf("Launch configuration %d failed: %v", i+1, err)
		errs = append(errs, err)
	}

	s.setState(StateIdle)
	return fmt.Errorf("%w: %w", ErrLaunch, errors.Join(errs...))
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Render navigates to url, waits according to ready and returns the DOM.
// A page-load timeout is not an error: loading is stopped and whatever DOM
// is attached is returned with Partial set. A dead browser yields ErrCrashed.
func (s *Session) Render(ctx context.Context, url string, ready Readiness) (*Page, error) {
	s.mu.Lock()
	if s.state != StateReady {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, st)
	}
	s.state = StateNavigating
	tabCtx := s.ctx
	s.mu.Unlock()

	// Tie the caller's cancellation to this render without cancelling the tab itself.
	runCtx, stop := mergeCancel(tabCtx, ctx)
	defer stop()

	p, err := s.render(runCtx, url, ready)
	if err != nil {
		if s.crashed(tabCtx, err) {
			s.setState(StateCrashed)
			s.logger.Errorf("Browser crashed while rendering %s: %v", url, err)
			return nil, fmt.Errorf("%w: %v", ErrCrashed, err)
		}
		s.setState(StateReady)
		return nil, err
	}

	s.setState(StateReady)
	return p, nil
}

func (s *Session) render(ctx context.Context, url string, ready Readiness) (*Page, error) {
	p := &Page{URL: url}

	navCtx, cancelNav := context.WithTimeout(ctx, s.opts.PageLoadTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	cancelNav()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Warnf("Page load timeout after %v, stopping load: %s", s.opts.PageLoadTimeout, url)
		p.Partial = true
		if err := chromedp.Run(ctx, page.StopLoading()); err != nil {
			return nil, fmt.Errorf("stop loading: %w", err)
		}
	default:
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	contentReady, err := s.await(ctx, ready)
	if err != nil {
		return nil, err
	}

	scriptCtx, cancelScript := context.WithTimeout(ctx, s.opts.ScriptTimeout)
	defer cancelScript()

	var html string
	if err := chromedp.Run(scriptCtx,
		chromedp.Evaluate(stampCurrentSrcJS, nil),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}
	p.HTML = html

	if isCF, info := cf.DetectRendered(html, contentReady); isCF {
		return nil, cf.AsError(url, info)
	}
	return p, nil
}

// await applies the readiness contract. Selector and scroll timeouts degrade to
// "continue with what is there". It reports false when the selector never appeared.
func (s *Session) await(ctx context.Context, ready Readiness) (bool, error) {
	contentReady := true
	if ready.Selector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, ready.selectorTimeout(s.opts.ScriptTimeout))
		err := chromedp.Run(waitCtx, chromedp.WaitReady(ready.Selector, chromedp.ByQuery))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return false, fmt.Errorf("wait for %q: %w", ready.Selector, err)
			}
			s.logger.Debugf("Selector %q not present before timeout, continuing", ready.Selector)
			contentReady = false
		}
	}

	if ready.ScrollSteps > 0 {
		if err := s.scroll(ctx, ready); err != nil {
			return false, err
		}
	}

	if ready.Settle > 0 {
		if err := chromedp.Run(ctx, chromedp.Sleep(ready.Settle)); err != nil {
			return false, err
		}
	}
	return contentReady, nil
}

// scroll steps down the page until the scroll position stops moving or the step budget runs out.
func (s *Session) scroll(ctx context.Context, ready Readiness) error {
	last := -1.0
	for i := 0; i < ready.ScrollSteps; i++ {
		var pos float64
		stepCtx, cancel := context.WithTimeout(ctx, s.opts.ScriptTimeout)
		err := chromedp.Run(stepCtx,
			chromedp.Evaluate(scrollStepJS, &pos),
			chromedp.Sleep(ready.scrollPause()),
		)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debugf("Scroll step %d failed, continuing with current DOM: %v", i+1, err)
			return nil
		}
		if pos == last {
			break
		}
		last = pos
	}
	return nil
}

// crashed reports whether err came from a dead browser rather than the page.
func (s *Session) crashed(tabCtx context.Context, err error) bool {
	if tabCtx.Err() != nil {
		return true
	}
	if errors.Is(err, chromedp.ErrChannelClosed) || errors.Is(err, chromedp.ErrInvalidContext) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "websocket: close") || strings.Contains(msg, "target closed")
}

// Close terminates the browser and removes the profile directory.
// It is safe to call more than once and in any state.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel, profile := s.cancel, s.profile
	s.cancel, s.profile = nil, ""
	s.state = StateClosed
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if profile != "" {
		if err := os.RemoveAll(profile); err != nil {
			return fmt.Errorf("remove profile: %w", err)
		}
	}
	return nil
}

// mergeCancel returns a context carrying base's values that is also cancelled when other is.
func mergeCancel(base, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

const scrollStepJS = `(() => {
	const el = document.scrollingElement || document.documentElement;
	el.scrollBy(0, Math.max(window.innerHeight, 600));
	return el.scrollTop;
})()`

// Copies the image source the browser actually chose into an attribute
// so it survives serialisation to HTML.
const stampCurrentSrcJS = `(() => {
	document.querySelectorAll('img').forEach(img => {
		if (img.currentSrc) img.setAttribute('data-current-src', img.currentSrc);
	});
	return true;
})()`
