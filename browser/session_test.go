package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "crashed", StateCrashed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestReadinessDefaults(t *testing.T) {
	r := Readiness{}
	assert.Equal(t, 5*time.Second, r.selectorTimeout(5*time.Second))
	assert.Equal(t, 250*time.Millisecond, r.scrollPause())

	r = LazyScroll("img", time.Second)
	assert.Equal(t, 24, r.ScrollSteps)
	assert.Equal(t, "img", r.Selector)
	assert.Equal(t, time.Second, r.Settle)
}

func TestCrashedClassification(t *testing.T) {
	s := &Session{}
	live := context.Background()

	assert.True(t, s.crashed(live, fmt.Errorf("run: %w", chromedp.ErrChannelClosed)))
	assert.True(t, s.crashed(live, chromedp.ErrInvalidContext))
	assert.True(t, s.crashed(live, errors.New("websocket: close 1006 (abnormal closure)")))
	assert.False(t, s.crashed(live, errors.New("net::ERR_NAME_NOT_RESOLVED")))

	dead, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, s.crashed(dead, errors.New("anything")))
}

func TestRenderRequiresReady(t *testing.T) {
	s := &Session{state: StateCrashed}
	_, err := s.Render(context.Background(), "http://example.invalid", Readiness{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCloseIdempotent(t *testing.T) {
	dir := t.TempDir() + "/profile"
	require.NoError(t, os.MkdirAll(dir, 0755))

	called := 0
	s := &Session{state: StateReady, profile: dir, cancel: func() { called++ }}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, called)
	assert.Equal(t, StateClosed, s.State())
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestMergeCancel(t *testing.T) {
	base := context.WithValue(context.Background(), struct{}{}, "v")
	other, cancelOther := context.WithCancel(context.Background())

	ctx, stop := mergeCancel(base, other)
	defer stop()
	assert.Equal(t, "v", ctx.Value(struct{}{}))

	cancelOther()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("merged context not cancelled")
	}
}

func findBrowser(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no chrome/chromium found in PATH")
}

func TestRenderLiveBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	findBrowser(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div class="reader">
<img src="/1.jpg"><img src="/2.jpg">
</div></body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	opts := DefaultOptions()
	opts.PageLoadTimeout = 20 * time.Second
	s, err := Launch(ctx, opts)
	require.NoError(t, err)
	profile := s.profile
	defer s.Close()

	assert.Equal(t, StateReady, s.State())
	_, err = os.Stat(profile)
	require.NoError(t, err)

	p, err := s.Render(ctx, srv.URL, Readiness{Selector: "div.reader img", ScrollSteps: 2, ScrollPause: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, p.Partial)
	assert.Contains(t, p.HTML, `class="reader"`)
	assert.Contains(t, p.HTML, `data-current-src`)
	assert.Equal(t, StateReady, s.State())

	require.NoError(t, s.Close())
	_, err = os.Stat(profile)
	assert.True(t, os.IsNotExist(err))
}
