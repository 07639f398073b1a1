// Package headless provides scene-graph collaborators for processes that run
// without a renderer: a timed scene loader, a registry of spawned objects and
// fixed start positions.
package headless

import (
	"errors"
	"sync"
	"time"

	"github.com/dcrodman/netmanager/internal/world"
)

var ErrEmptySceneName = errors.New("scene name is empty")

// Loader pretends to load scenes. A load completes once Delay has elapsed
// since it was requested, at which point the scene becomes active.
type Loader struct {
	Delay time.Duration
	// Now is the clock used to time loads. Defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	active string
	loads  []string
}

func NewLoader(initialScene string, delay time.Duration) *Loader {
	return &Loader{Delay: delay, Now: time.Now, active: initialScene}
}

func (l *Loader) LoadSceneAsync(name string) (world.LoadOperation, error) {
	if name == "" {
		return nil, ErrEmptySceneName
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loads = append(l.loads, name)
	return &loadOperation{loader: l, name: name, readyAt: l.now().Add(l.Delay)}, nil
}

func (l *Loader) ActiveScene() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Loads returns every scene name requested so far, in order.
func (l *Loader) Loads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.loads...)
}

func (l *Loader) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

type loadOperation struct {
	loader  *Loader
	name    string
	readyAt time.Time
	done    bool
}

func (op *loadOperation) IsDone() bool {
	if op.done {
		return true
	}
	op.loader.mu.Lock()
	defer op.loader.mu.Unlock()

	if op.loader.now().Before(op.readyAt) {
		return false
	}
	op.done = true
	op.loader.active = op.name
	return true
}
