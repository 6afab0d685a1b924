// Package ui renders run progress and summaries in the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"chapterd/engine"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// StatusIcon returns the marker shown next to a task.
func StatusIcon(status engine.Status) string {
	switch status {
	case engine.StatusQueued:
		return "⏳"
	case engine.StatusChecking:
		return "🔎"
	case engine.StatusDownloading:
		return "⬇️"
	case engine.StatusCompleted:
		return "✅"
	case engine.StatusCancelled:
		return "🚫"
	case engine.StatusFailed:
		return "❌"
	default:
		return "❓"
	}
}

// Progress draws one bar per title, fed by an engine.Board.
type Progress struct {
	p    *mpb.Progress
	bars map[string]*titleBar
	mu   sync.Mutex
}

// NewProgress creates the bar container writing to out (stdout when nil).
func NewProgress(out io.Writer) *Progress {
	if out == nil {
		out = os.Stdout
	}
	return &Progress{
		p: mpb.New(
			mpb.WithWidth(40),
			mpb.WithOutput(out),
			mpb.WithRefreshRate(120*time.Millisecond),
		),
		bars: make(map[string]*titleBar),
	}
}

// Attach subscribes to board updates.
func (pr *Progress) Attach(board *engine.Board) {
	board.SetCallbacks(pr.onAdded, pr.onUpdated)
}

// Wait blocks until every bar is complete and flushed.
func (pr *Progress) Wait() {
	pr.mu.Lock()
	for _, b := range pr.bars {
		b.finish()
	}
	pr.mu.Unlock()
	pr.p.Wait()
}

func (pr *Progress) onAdded(task engine.Task) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.bars[task.ID] = newTitleBar(pr.p, task)
}

func (pr *Progress) onUpdated(task engine.Task) {
	pr.mu.Lock()
	b, ok := pr.bars[task.ID]
	pr.mu.Unlock()
	if ok {
		b.update(task)
	}
}

// titleBar counts chapters of the acting range.
type titleBar struct {
	bar     *mpb.Bar
	status  atomic.Value // engine.Status
	message atomic.Value // string
	start   time.Time
	final   atomic.Bool
}

func newTitleBar(p *mpb.Progress, task engine.Task) *titleBar {
	b := &titleBar{start: time.Now()}
	b.status.Store(task.Status)
	b.message.Store(task.Message)

	b.bar = p.New(
		0,
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return StatusIcon(b.status.Load().(engine.Status)) + " "
			}),
			decor.Name(task.Slug+"  ", decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit(" %d/%d chapters", decor.WCSyncWidth),
			decor.Any(func(decor.Statistics) string {
				return " | " + b.message.Load().(string)
			}),
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf(" | %ds", int(time.Since(b.start).Seconds()))
			}),
		),
	)
	return b
}

func (b *titleBar) update(task engine.Task) {
	if b.final.Load() {
		return
	}
	b.status.Store(task.Status)

	msg := task.Message
	if task.Status == engine.StatusDownloading && task.ImagesTotal > 0 {
		msg = fmt.Sprintf("%s, image %d/%d", task.Message, task.Images, task.ImagesTotal)
	}
	b.message.Store(msg)

	if task.Total > 0 {
		b.bar.SetTotal(int64(task.Total), false)
		b.bar.SetCurrent(int64(task.Done))
	}

	switch task.Status {
	case engine.StatusCompleted, engine.StatusFailed, engine.StatusCancelled:
		b.finish()
	}
}

func (b *titleBar) finish() {
	if b.final.Swap(true) {
		return
	}
	// a title with nothing to do still completes its bar
	b.bar.SetTotal(-1, true)
}
