package overlay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/sync/semaphore"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/tree"
)

const defaultMaxConcurrency = 4

// Engine classifies pages and manages translation overlays on them. One engine may
// serve many documents and overlapping walks; all tree mutation happens under its lock,
// which is released only while a backend call is in progress.
type Engine struct {
	backend    Translator
	layout     tree.Layout
	indicators Indicators
	decorator  Decorator
	logger     *slog.Logger
	sem        *semaphore.Weighted
	settings   atomic.Pointer[Settings]

	mu      sync.Mutex
	tracker *Tracker
	states  *states
	stamps  map[*html.Node]string
	labels  map[*html.Node]Label
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithLayout(l tree.Layout) Option {
	return func(e *Engine) {
		if l != nil {
			e.layout = l
		}
	}
}

func WithIndicators(i Indicators) Option {
	return func(e *Engine) {
		if i != nil {
			e.indicators = i
		}
	}
}

// WithDecorator replaces the StyleDecorator built from the settings.
func WithDecorator(d Decorator) Option {
	return func(e *Engine) { e.decorator = d }
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings.Store(&s) }
}

// WithMaxConcurrency bounds the number of backend calls in flight.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func New(backend Translator, opts ...Option) *Engine {
	e := &Engine{
		backend:    backend,
		layout:     tree.StyleLayout{},
		indicators: MarkupIndicators{},
		logger:     logging.Discard(),
		sem:        semaphore.NewWeighted(defaultMaxConcurrency),
		tracker:    NewTracker(),
		states:     newStates(),
		stamps:     map[*html.Node]string{},
		labels:     map[*html.Node]Label{},
	}
	defaults := DefaultSettings()
	e.settings.Store(&defaults)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetSettings takes effect for walks started afterwards.
func (e *Engine) SetSettings(s Settings) {
	e.settings.Store(&s)
}

func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Label returns the committed label of n and the session that classified it.
func (e *Engine) Label(n *html.Node) (Label, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.labels[n], e.stamps[n]
}

// State returns the lifecycle state of an overlay.
func (e *Engine) State(overlay *html.Node) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.get(overlay)
}

// Report counts what happened during a walk or a single unit translation.
type Report struct {
	Session    string `json:"session"`
	Dispatched int    `json:"dispatched"`
	Translated int    `json:"translated"`
	Failed     int    `json:"failed"`
	Discarded  int    `json:"discarded"`
	TornDown   int    `json:"torn_down"`
	Skipped    int    `json:"skipped"`
}

// run is the per-call context threaded through a walk. Its report is only touched
// under the engine lock.
type run struct {
	doc       *tree.Document
	session   string
	toggle    bool
	settings  Settings
	decorator Decorator
	report    Report
}

func (e *Engine) newRun(doc *tree.Document, session string, toggle bool) *run {
	settings := e.Settings()
	return &run{
		doc:       doc,
		session:   session,
		toggle:    toggle,
		settings:  settings,
		decorator: e.decoratorFor(settings),
		report:    Report{Session: session},
	}
}

func (e *Engine) decoratorFor(settings Settings) Decorator {
	if e.decorator != nil {
		return e.decorator
	}
	return StyleDecorator{Preset: settings.StylePreset, CSS: settings.CustomCSS}
}

// forget drops the committed labels of n and everything under it, embedded documents
// included. Callers hold the engine lock.
func (e *Engine) forget(doc *tree.Document, n *html.Node) {
	delete(e.labels, n)
	delete(e.stamps, n)
	if tree.IsFrame(n) {
		if body, err := doc.Frame(n); err == nil {
			e.forget(doc, body)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.forget(doc, c)
	}
}

// Classify labels the subtree under root for session without touching the engine's
// committed labels.
func (e *Engine) Classify(doc *tree.Document, root *html.Node, session string) *Labels {
	e.mu.Lock()
	defer e.mu.Unlock()
	return newClassifier(doc, e.layout, e.Settings(), e.logger, session).run(root)
}

// Prepare classifies root under a fresh session and commits the result.
func (e *Engine) Prepare(doc *tree.Document, root *html.Node) *Labels {
	labels := e.Classify(doc, root, uuid.NewString())
	e.commit(labels)
	return labels
}

func (e *Engine) commit(labels *Labels) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for n, label := range labels.marks {
		e.stamps[n] = labels.Session
		e.labels[n] = label
	}
}

// Run classifies root and walks it. ReasonToggle flips every unit under root between
// translated and original.
func (e *Engine) Run(ctx context.Context, doc *tree.Document, root *html.Node, reason Reason) (Report, error) {
	switch {
	case doc == nil:
		return Report{}, ErrNilDocument
	case root == nil:
		return Report{}, ErrNilRoot
	case !doc.Contains(root):
		return Report{}, ErrForeignRoot
	}

	labels := e.Prepare(doc, root)
	e.logger.Debug("classified subtree",
		slog.String("session", labels.Session),
		slog.Int("elements", labels.Len()),
	)
	return e.Walk(ctx, doc, root, labels.Session, reason == ReasonToggle), nil
}
