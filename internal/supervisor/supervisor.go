// Package supervisor implements a hierarchical OTP-style supervisor: a
// fixed or dynamic set of children started in order, restarted according to
// one of four strategies when one of them terminates abnormally, with a
// sliding-window restart-intensity limit that fails the supervisor itself
// if restarts happen too fast.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RestartType controls whether a child is restarted when it terminates.
type RestartType int

const (
	// Permanent children are always restarted.
	Permanent RestartType = iota

	// Transient children are restarted only if they terminate
	// abnormally (crash, or unexpected Terminated); an intentional stop
	// (via TerminateChild or supervisor Stop) never restarts them.
	Transient

	// Temporary children are never restarted.
	Temporary
)

// Strategy selects how sibling children are affected when one terminates.
type Strategy int

const (
	// OneForOne restarts only the terminated child.
	OneForOne Strategy = iota

	// OneForAll terminates and restarts every child whenever one
	// terminates.
	OneForAll

	// RestForOne terminates and restarts the failed child and every
	// child started after it, in original start order.
	RestForOne

	// SimpleOneForOne manages many dynamically started instances of a
	// single child template; only the failed instance is restarted.
	SimpleOneForOne
)

// AutoShutdown controls whether the supervisor stops itself when
// significant children exit normally.
type AutoShutdown int

const (
	// Never means the supervisor never stops itself due to children
	// exiting.
	Never AutoShutdown = iota

	// AnySignificant stops the supervisor when any significant child
	// exits normally.
	AnySignificant

	// AllSignificant stops the supervisor only once every significant
	// child has exited normally.
	AllSignificant
)

// ErrMaxRestartsExceeded is reported via Err/a parent's report callback
// when the restart-intensity window is exceeded.
var ErrMaxRestartsExceeded = fmt.Errorf("max restart intensity exceeded")

// ChildHandle is the minimal capability a started child exposes back to its
// supervisor.
type ChildHandle interface {
	ID() string
}

// ChildSpec describes one child of a supervisor.
type ChildSpec struct {
	// ID uniquely identifies this child within its supervisor.
	ID string

	// Start launches the child. report must be invoked by the started
	// child's owner exactly once, asynchronously, if and when the child
	// terminates outside of a supervisor-initiated stop; report(nil)
	// signals a normal exit (relevant to Transient and AutoShutdown),
	// a non-nil error signals an abnormal one.
	Start func(ctx context.Context, report func(err error)) (ChildHandle, error)

	// Stop terminates a running child, waiting up to ShutdownTimeout.
	Stop func(ctx context.Context, h ChildHandle) error

	Restart         RestartType
	ShutdownTimeout time.Duration
	Significant     bool
}

// RestartIntensity bounds how many restarts are tolerated within a sliding
// window before the supervisor itself fails.
type RestartIntensity struct {
	Max    int
	Within time.Duration
}

// DefaultRestartIntensity allows 3 restarts in 5 seconds.
var DefaultRestartIntensity = RestartIntensity{Max: 3, Within: 5 * time.Second}

// Config configures a Supervisor.
type Config struct {
	Strategy     Strategy
	Intensity    RestartIntensity
	AutoShutdown AutoShutdown

	// Children is used for every strategy except SimpleOneForOne.
	Children []ChildSpec

	// Template is used only for SimpleOneForOne; Spawn supplies the
	// per-instance ID suffix and takes no separate ChildSpec.
	Template ChildSpec
}

type childEntry struct {
	spec    ChildSpec
	handle  ChildHandle
	exited  bool
	stopped bool // intentional stop requested by the supervisor
}

type childEvent struct {
	id  string
	err error // nil => normal exit
}

// Supervisor manages a set of children per Config.
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	order    []string // child IDs in start order
	entries  map[string]*childEntry
	restarts []time.Time

	events chan childEvent
	done   chan struct{}
	stopCh chan struct{}

	stopOnce sync.Once

	fatalMu  sync.Mutex
	fatalErr error

	onFatal func(error)

	simpleSeq int
}

// Start constructs a Supervisor from cfg, starts its children in order, and
// launches its control loop. If any child fails to start, every
// already-started child is stopped in reverse order and the error is
// returned.
func Start(ctx context.Context, cfg Config, onFatal func(error)) (*Supervisor, error) {
	s := &Supervisor{
		cfg:     cfg,
		entries: make(map[string]*childEntry),
		events:  make(chan childEvent, 32),
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
		onFatal: onFatal,
	}

	if cfg.Strategy == SimpleOneForOne {
		go s.loop(ctx)
		return s, nil
	}

	for _, spec := range cfg.Children {
		if err := s.startChildLocked(ctx, spec); err != nil {
			s.unwindLocked(ctx)
			return nil, fmt.Errorf("starting child %q: %w", spec.ID, err)
		}
	}

	go s.loop(ctx)

	return s, nil
}

func (s *Supervisor) startChildLocked(ctx context.Context, spec ChildSpec) error {
	handle, err := spec.Start(ctx, func(err error) {
		select {
		case s.events <- childEvent{id: spec.ID, err: err}:
		case <-s.stopCh:
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.order = append(s.order, spec.ID)
	s.entries[spec.ID] = &childEntry{spec: spec, handle: handle}
	s.mu.Unlock()

	return nil
}

// unwindLocked stops every started child in reverse start order. Used when
// Start fails partway through.
func (s *Supervisor) unwindLocked(ctx context.Context) {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		s.stopChildByID(ctx, order[i])
	}
}

func (s *Supervisor) stopChildByID(ctx context.Context, id string) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || entry.stopped {
		return
	}

	entry.stopped = true

	timeout := entry.spec.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if entry.spec.Stop != nil {
		_ = entry.spec.Stop(stopCtx, entry.handle)
	}
}

// StartChild adds and starts a new child. Only valid for strategies other
// than SimpleOneForOne (use Spawn for that).
func (s *Supervisor) StartChild(ctx context.Context, spec ChildSpec) error {
	if s.cfg.Strategy == SimpleOneForOne {
		return fmt.Errorf("use Spawn for a simple_one_for_one supervisor")
	}

	return s.startChildLocked(ctx, spec)
}

// Spawn starts a new instance of the SimpleOneForOne template and returns
// its assigned child ID.
func (s *Supervisor) Spawn(ctx context.Context) (string, error) {
	if s.cfg.Strategy != SimpleOneForOne {
		return "", fmt.Errorf("Spawn is only valid for simple_one_for_one")
	}

	s.mu.Lock()
	s.simpleSeq++
	id := fmt.Sprintf("%s-%d", s.cfg.Template.ID, s.simpleSeq)
	s.mu.Unlock()

	spec := s.cfg.Template
	spec.ID = id

	if err := s.startChildLocked(ctx, spec); err != nil {
		return "", err
	}

	return id, nil
}

// TerminateChild stops a specific child by ID without restarting it,
// regardless of its RestartType.
func (s *Supervisor) TerminateChild(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such child: %s", id)
	}

	s.stopChildByID(ctx, id)

	s.mu.Lock()
	delete(s.entries, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return nil
}

// RestartChild intentionally stops and immediately restarts a child,
// independent of its RestartType and without counting against restart
// intensity (this is an operator-requested restart, not a failure).
func (s *Supervisor) RestartChild(ctx context.Context, id string) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such child: %s", id)
	}

	s.stopChildByID(ctx, id)

	spec := entry.spec
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	return s.startChildLocked(ctx, spec)
}

// Stop terminates every child in reverse start order and shuts down the
// control loop.
func (s *Supervisor) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		order := append([]string(nil), s.order...)
		s.mu.Unlock()

		for i := len(order) - 1; i >= 0; i-- {
			s.stopChildByID(ctx, order[i])
		}

		close(s.done)
	})
}

// Done is closed once Stop has finished terminating all children.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Err returns the fatal error, if the supervisor failed its own restart
// intensity bound.
func (s *Supervisor) Err() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatalErr
}

func (s *Supervisor) loop(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return

		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev childEvent) {
	s.mu.Lock()
	entry, ok := s.entries[ev.id]
	s.mu.Unlock()
	if !ok || entry.stopped {
		// An intentional stop or a child we no longer track; ignore.
		return
	}

	shouldRestart := ev.err != nil && entry.spec.Restart != Temporary
	if ev.err == nil && entry.spec.Restart == Permanent {
		shouldRestart = true
	}

	if !shouldRestart {
		s.mu.Lock()
		delete(s.entries, ev.id)
		s.mu.Unlock()

		if ev.err == nil && entry.spec.Significant {
			s.maybeAutoShutdown(ctx)
		}

		return
	}

	if !s.recordRestartAllowed() {
		s.fail(ctx, fmt.Errorf("%w: child %s", ErrMaxRestartsExceeded, ev.id))
		return
	}

	switch s.cfg.Strategy {
	case OneForOne, SimpleOneForOne:
		s.restartOne(ctx, ev.id)

	case OneForAll:
		s.restartFrom(ctx, 0)

	case RestForOne:
		s.mu.Lock()
		idx := -1
		for i, id := range s.order {
			if id == ev.id {
				idx = i
				break
			}
		}
		s.mu.Unlock()

		if idx >= 0 {
			s.restartFrom(ctx, idx)
		} else {
			s.restartOne(ctx, ev.id)
		}
	}
}

func (s *Supervisor) restartOne(ctx context.Context, id string) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	spec := entry.spec

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	if err := s.startChildLocked(ctx, spec); err != nil {
		s.fail(ctx, fmt.Errorf("restarting child %q: %w", id, err))
	}
}

// restartFrom stops and restarts every child at or after position idx in
// start order, in that order.
func (s *Supervisor) restartFrom(ctx context.Context, idx int) {
	s.mu.Lock()
	affected := append([]string(nil), s.order[idx:]...)
	s.mu.Unlock()

	specs := make([]ChildSpec, 0, len(affected))
	for _, id := range affected {
		s.mu.Lock()
		entry, ok := s.entries[id]
		s.mu.Unlock()
		if ok {
			specs = append(specs, entry.spec)
			s.stopChildByID(ctx, id)
		}
	}

	s.mu.Lock()
	for _, id := range affected {
		delete(s.entries, id)
	}
	s.order = s.order[:idx]
	s.mu.Unlock()

	for _, spec := range specs {
		if err := s.startChildLocked(ctx, spec); err != nil {
			s.fail(ctx, fmt.Errorf("restarting child %q: %w",
				spec.ID, err))
			return
		}
	}
}

func (s *Supervisor) maybeAutoShutdown(ctx context.Context) {
	if s.cfg.AutoShutdown == Never {
		return
	}

	s.mu.Lock()
	remaining := 0
	for _, e := range s.entries {
		if e.spec.Significant {
			remaining++
		}
	}
	s.mu.Unlock()

	switch s.cfg.AutoShutdown {
	case AnySignificant:
		go s.Stop(ctx)
	case AllSignificant:
		if remaining == 0 {
			go s.Stop(ctx)
		}
	}
}

// recordRestartAllowed evicts restart timestamps outside the window, then
// records a new one; it returns false if the window is now over Max.
func (s *Supervisor) recordRestartAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.cfg.Intensity.Within)

	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = append(kept, now)

	return len(s.restarts) <= s.cfg.Intensity.Max
}

func (s *Supervisor) fail(ctx context.Context, err error) {
	s.fatalMu.Lock()
	s.fatalErr = err
	s.fatalMu.Unlock()

	if s.onFatal != nil {
		s.onFatal(err)
	}

	go s.Stop(ctx)
}
