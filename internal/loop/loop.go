// Package loop drives layout engines on a single goroutine. Callers talk to
// it through a FIFO message queue; once per frame the loop drains the
// queue, ticks every pane's engine, projects a frame and publishes it to
// subscribers.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/store"
)

// DefaultPane is the pane used when a caller names none.
const DefaultPane = "main"

// ErrStopped is returned for messages sent after the loop has exited.
var ErrStopped = errors.New("loop stopped")

// ErrUnknownPane is returned for operations on a pane that has never
// accepted a snapshot. Only Update creates panes.
var ErrUnknownPane = errors.New("unknown pane")

// Options configures a Loop.
type Options struct {
	// Engine configures every pane's layout engine.
	Engine layout.Config

	// Interval is the frame period. Default: 1/60s.
	Interval time.Duration

	// QueueSize bounds the message queue. Default: 256.
	QueueSize int

	// Recorder, when set, journals every accepted snapshot. Each pane gets
	// a session that is restarted by a reset.
	Recorder *store.Recorder

	// Label is stored with recorded sessions.
	Label string

	Metrics *Metrics
	Logger  *slog.Logger
	Merges  *logging.MergeLogger
}

// Published is a frame tagged with the pane it belongs to.
type Published struct {
	Pane  string       `json:"pane"`
	Frame layout.Frame `json:"frame"`
}

// message is a queued call. fn receives nil when the pane does not exist
// and create is false.
type message struct {
	ctx    context.Context
	pane   string
	create bool
	fn     func(ctx context.Context, p *pane)
}

type pane struct {
	name    string
	engine  *layout.Engine
	session string
	dirty   bool
	live    bool // has accepted a snapshot
}

// Loop owns one layout engine per pane. All engine calls happen on the
// goroutine running Run; the exported methods are safe for concurrent use.
type Loop struct {
	opts   Options
	logger *slog.Logger

	queue chan message
	done  chan struct{}
	once  sync.Once

	panes map[string]*pane // loop goroutine only

	mu     sync.RWMutex
	frames map[string]layout.Frame
	subs   map[*Subscription]struct{}
}

// New creates a loop. Call Run to start it.
func New(opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 60
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Loop{
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
		queue:  make(chan message, opts.QueueSize),
		done:   make(chan struct{}),
		panes:  make(map[string]*pane),
		frames: make(map[string]layout.Frame),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Run processes frames until ctx is cancelled. It returns nil on
// cancellation. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	l.logger.Debug("frame loop started", "interval", l.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("frame loop stopped")
			return nil
		case <-ticker.C:
			l.frame(ctx)
		}
	}
}

func (l *Loop) stop() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		for s := range l.subs {
			delete(l.subs, s)
			close(s.ch)
		}
		l.mu.Unlock()
	})
}

// frame drains the queue, then ticks, projects and publishes every pane.
func (l *Loop) frame(ctx context.Context) {
drain:
	for {
		select {
		case m := <-l.queue:
			l.handle(m)
		default:
			break drain
		}
	}

	names := make([]string, 0, len(l.panes))
	for name := range l.panes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := l.panes[name]
		start := time.Now()
		ran := p.engine.Tick(ctx)
		l.opts.Metrics.observeTick(name, time.Since(start))
		if ran == 0 && !p.dirty {
			continue
		}
		p.dirty = false
		l.publish(name, p.engine.Frame())
	}
}

func (l *Loop) handle(m message) {
	if m.ctx.Err() != nil {
		return
	}
	p, ok := l.panes[m.pane]
	if !ok && m.create {
		p = l.newPane(m.pane)
	}
	m.fn(m.ctx, p)
	// A pane whose first snapshot was rejected never existed.
	if !ok && p != nil && !p.live {
		delete(l.panes, m.pane)
	}
}

func (l *Loop) newPane(name string) *pane {
	e := layout.NewEngine(l.opts.Engine)
	e.SetLogger(l.logger.With("pane", name), l.opts.Merges)
	p := &pane{name: name, engine: e}
	l.panes[name] = p
	return p
}

func paneName(name string) string {
	if name == "" {
		return DefaultPane
	}
	return name
}

// post enqueues a message, blocking while the queue is full.
func (l *Loop) post(ctx context.Context, m message) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// call runs fn on the loop goroutine and waits for its result. Unless
// create is set, fn only runs against an existing pane.
func (l *Loop) call(ctx context.Context, name string, create bool, fn func(ctx context.Context, p *pane) error) error {
	errc := make(chan error, 1)
	m := message{
		ctx:    ctx,
		pane:   paneName(name),
		create: create,
		fn: func(ctx context.Context, p *pane) {
			if p == nil {
				errc <- fmt.Errorf("%w %q", ErrUnknownPane, paneName(name))
				return
			}
			errc <- fn(ctx, p)
		},
	}
	if err := l.post(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Update merges a snapshot into a pane's layout. A rejected snapshot is
// logged and counted; the pane keeps rendering its last good layout.
func (l *Loop) Update(ctx context.Context, name string, snap *snapshot.Snapshot) (layout.MergeResult, error) {
	var result layout.MergeResult
	err := l.call(ctx, name, true, func(ctx context.Context, p *pane) error {
		res, err := p.engine.InitializeOrUpdate(ctx, snap)
		if err != nil {
			l.logger.Warn("snapshot update failed", "pane", p.name, "error", err)
			l.opts.Metrics.reject(p.name, err)
			return err
		}
		result = res
		p.live = true
		p.dirty = true
		l.opts.Metrics.merged(p.name, res.Kind)
		l.opts.Metrics.setTracked(p.name, res.Tracked)
		l.record(ctx, p, snap)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.opts.Metrics.reject(paneName(name), err)
		}
		return layout.MergeResult{}, err
	}
	return result, nil
}

func (l *Loop) record(ctx context.Context, p *pane, snap *snapshot.Snapshot) {
	if l.opts.Recorder == nil {
		return
	}
	if p.session == "" {
		sess, err := l.opts.Recorder.StartSession(ctx, p.name, l.opts.Label)
		if err != nil {
			l.logger.Warn("failed to start recording session", "pane", p.name, "error", err)
			return
		}
		p.session = sess.ID
		l.logger.Info("recording session started", "pane", p.name, "session", sess.ID)
	}
	if _, err := l.opts.Recorder.Append(ctx, p.session, snap); err != nil {
		l.logger.Warn("failed to record snapshot", "pane", p.name, "session", p.session, "error", err)
	}
}

// Reset discards a pane's layout. The next snapshot initializes it anew
// and, when recording, starts a new session. Resetting an unknown pane
// does nothing.
func (l *Loop) Reset(ctx context.Context, name string) error {
	err := l.call(ctx, name, false, func(_ context.Context, p *pane) error {
		p.engine.Reset()
		p.session = ""
		p.dirty = true
		l.opts.Metrics.setTracked(p.name, 0)
		return nil
	})
	if errors.Is(err, ErrUnknownPane) {
		return nil
	}
	return err
}

// PointerMove queues a pointer position in surface coordinates. It is
// applied before the next frame is projected, and dropped for unknown
// panes.
func (l *Loop) PointerMove(ctx context.Context, name string, surface lens.Point) error {
	return l.post(ctx, message{ctx: context.Background(), pane: paneName(name), fn: func(_ context.Context, p *pane) {
		if p == nil {
			return
		}
		p.engine.NotifyPointerMove(surface)
		p.dirty = true
	}})
}

// DragStart starts dragging the node under the surface point and returns
// its id.
func (l *Loop) DragStart(ctx context.Context, name string, surface lens.Point) (string, error) {
	var id string
	err := l.call(ctx, name, false, func(_ context.Context, p *pane) error {
		h, err := p.engine.DragStart(surface)
		if err != nil {
			return err
		}
		n, err := p.engine.Node(h)
		if err != nil {
			return err
		}
		id = n.ID
		p.dirty = true
		return nil
	})
	return id, err
}

// DragEnd releases the dragged node, if any.
func (l *Loop) DragEnd(ctx context.Context, name string) error {
	return l.post(ctx, message{ctx: context.Background(), pane: paneName(name), fn: func(_ context.Context, p *pane) {
		if p == nil {
			return
		}
		p.engine.DragEnd()
		p.dirty = true
	}})
}

// SetView installs a pan/zoom transform on a pane.
func (l *Loop) SetView(ctx context.Context, name string, t lens.ViewTransform) error {
	return l.call(ctx, name, false, func(_ context.Context, p *pane) error {
		if !p.engine.SetViewTransform(t) {
			return fmt.Errorf("invalid view transform %+v", t)
		}
		p.dirty = true
		return nil
	})
}

// Position returns the simulation-space position of a node.
func (l *Loop) Position(ctx context.Context, name, id string) (lens.Point, error) {
	var pos lens.Point
	err := l.call(ctx, name, false, func(_ context.Context, p *pane) error {
		var err error
		pos, err = p.engine.Position(id)
		return err
	})
	return pos, err
}

// Frame returns the last frame published for a pane.
func (l *Loop) Frame(name string) (layout.Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.frames[paneName(name)]
	return f, ok
}

// Panes returns the names of panes that have published a frame.
func (l *Loop) Panes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.frames))
	for name := range l.frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loop) publish(name string, f layout.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames[name] = f
	for s := range l.subs {
		if s.pane == "" || s.pane == name {
			s.deliver(Published{Pane: name, Frame: f})
		}
	}
	l.opts.Metrics.published(name)
}

// Subscription receives published frames. Slow subscribers miss frames
// rather than stall the loop.
type Subscription struct {
	pane string
	ch   chan Published
	l    *Loop
}

// Subscribe returns a subscription to one pane's frames, or to every pane
// when name is empty. The channel is closed when the loop stops or the
// subscription is closed.
func (l *Loop) Subscribe(name string) *Subscription {
	s := &Subscription{pane: name, ch: make(chan Published, 8), l: l}
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		close(s.ch)
	default:
		l.subs[s] = struct{}{}
	}
	return s
}

// C returns the frame channel.
func (s *Subscription) C() <-chan Published { return s.ch }

// Close stops delivery and closes the channel. It is idempotent.
func (s *Subscription) Close() {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if _, ok := s.l.subs[s]; ok {
		delete(s.l.subs, s)
		close(s.ch)
	}
}

// deliver sends without blocking, dropping the oldest queued frame when full.
func (s *Subscription) deliver(p Published) {
	for {
		select {
		case s.ch <- p:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
