package engine

import (
	"fmt"
	"sync"

	"chapterd/models"

	"github.com/charmbracelet/log"
)

// Status is the lifecycle state of a title task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusChecking    Status = "checking"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Task is the live progress of one title within a run.
type Task struct {
	ID      string
	Slug    string
	Status  Status
	Message string
	Site    models.Site

	// Chapter range progress
	Chapter int
	Done    int
	Total   int

	// Image progress of the current chapter
	Images      int
	ImagesTotal int

	Err error
}

// Board tracks the tasks of a run and notifies listeners of every change.
// Listeners receive copies and may be called from several goroutines.
type Board struct {
	tasks []*Task
	mu    sync.RWMutex

	onTaskAdded   func(Task)
	onTaskUpdated func(Task)
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// SetCallbacks sets the listeners for added and updated tasks.
func (b *Board) SetCallbacks(onAdded, onUpdated func(Task)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTaskAdded = onAdded
	b.onTaskUpdated = onUpdated
}

// Add queues a task for slug and returns its ID.
func (b *Board) Add(slug string) string {
	b.mu.Lock()
	task := &Task{
		ID:      fmt.Sprintf("%s-%d", slug, len(b.tasks)),
		Slug:    slug,
		Status:  StatusQueued,
		Message: "Waiting in queue...",
	}
	b.tasks = append(b.tasks, task)
	snapshot := *task
	cb := b.onTaskAdded
	b.mu.Unlock()

	log.WithPrefix("[Queue]").Debugf("Added task: %s (%s)", slug, snapshot.ID)
	if cb != nil {
		cb(snapshot)
	}
	return snapshot.ID
}

// Update applies fn to the task with id.
func (b *Board) Update(id string, fn func(*Task)) {
	b.mu.Lock()
	var snapshot Task
	found := false
	for _, t := range b.tasks {
		if t.ID == id {
			fn(t)
			snapshot = *t
			found = true
			break
		}
	}
	cb := b.onTaskUpdated
	b.mu.Unlock()

	if found && cb != nil {
		cb(snapshot)
	}
}

// Get returns a copy of the task with id.
func (b *Board) Get(id string) (Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tasks {
		if t.ID == id {
			return *t, true
		}
	}
	return Task{}, false
}

// Tasks returns copies of all tasks in insertion order.
func (b *Board) Tasks() []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Task, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = *t
	}
	return out
}

// Counts returns how many tasks are in each status.
func (b *Board) Counts() map[Status]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[Status]int)
	for _, t := range b.tasks {
		counts[t.Status]++
	}
	return counts
}
