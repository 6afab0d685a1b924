package engine

import (
	"context"
	"errors"
	"fmt"

	"chapterd/browser"

	"github.com/charmbracelet/log"
)

// Renderer is the render session boundary. browser.Session satisfies it.
type Renderer interface {
	Render(ctx context.Context, url string, ready browser.Readiness) (*browser.Page, error)
	Close() error
}

// Launcher starts a fresh render session.
type Launcher func(ctx context.Context) (Renderer, error)

// sessionSlot holds at most one live session for a title and launches lazily.
type sessionSlot struct {
	launch  Launcher
	current Renderer
	logger  *log.Logger
}

func (s *sessionSlot) get(ctx context.Context) (Renderer, error) {
	if s.current != nil {
		return s.current, nil
	}
	r, err := s.launch(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrLaunch) {
			err = fmt.Errorf("%w: %v", browser.ErrLaunch, err)
		}
		return nil, err
	}
	s.current = r
	return r, nil
}

// discard drops a crashed session after releasing what it can.
func (s *sessionSlot) discard() {
	s.logger.Warn("Discarding crashed render session")
	s.release()
}

// release closes the current session, if any.
func (s *sessionSlot) release() {
	if s.current == nil {
		return
	}
	if err := s.current.Close(); err != nil {
		s.logger.Warnf("Failed to close render session: %v", err)
	}
	s.current = nil
}
