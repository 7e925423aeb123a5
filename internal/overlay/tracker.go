package overlay

import (
	"sync"

	"golang.org/x/net/html"
)

// Tracker is the engine's bookkeeping: units with a translation in flight and the
// original content of containers rewritten in translation-only mode.
type Tracker struct {
	mu        sync.Mutex
	inFlight  map[*html.Node]struct{}
	snapshots map[*html.Node]string
}

func NewTracker() *Tracker {
	return &Tracker{
		inFlight:  map[*html.Node]struct{}{},
		snapshots: map[*html.Node]string{},
	}
}

// Acquire marks nodes as in flight. It returns false, changing nothing, when every
// one of them already is.
func (t *Tracker) Acquire(nodes []*html.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	busy := 0
	for _, n := range nodes {
		if _, ok := t.inFlight[n]; ok {
			busy++
		}
	}
	if len(nodes) > 0 && busy == len(nodes) {
		return false
	}
	for _, n := range nodes {
		t.inFlight[n] = struct{}{}
	}
	return true
}

func (t *Tracker) Release(nodes []*html.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range nodes {
		delete(t.inFlight, n)
	}
}

func (t *Tracker) InFlight(n *html.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inFlight[n]
	return ok
}

func (t *Tracker) Snapshot(container *html.Node) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.snapshots[container]
	return s, ok
}

// SetSnapshot records the original content of container unless one is already kept.
func (t *Tracker) SetSnapshot(container *html.Node, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.snapshots[container]; ok {
		return false
	}
	t.snapshots[container] = content
	return true
}

func (t *Tracker) DeleteSnapshot(container *html.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, container)
}

func (t *Tracker) Snapshots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snapshots)
}
