// Package distsup places supervised children across cluster nodes rather
// than within a single process: the same restart semantics as
// internal/supervisor, with a NodeSelector deciding where each child runs
// and automatic re-placement when the node it was running on goes down.
package distsup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/supervisor"
	"github.com/roasbeef/holon/internal/wire"
)

// DistChildSpec describes one child whose running instance is placed on a
// cluster node rather than started in-process.
type DistChildSpec struct {
	// ID uniquely identifies this child within its DistSupervisor.
	ID string

	// BehaviorName must already be registered with
	// remote.RegisterBehavior on every node this spec could be placed
	// on.
	BehaviorName string
	Args         any

	Restart      supervisor.RestartType
	NodeSelector NodeSelector

	ShutdownTimeout time.Duration
	Significant     bool
}

// MigrationEvent is emitted whenever a child is re-placed onto a different
// node than the one it was last running on, whether due to a node going
// down or an operator-triggered restart landing elsewhere.
type MigrationEvent struct {
	ChildID string
	From    wire.NodeID
	To      wire.NodeID
}

// Config configures a DistSupervisor.
type Config struct {
	Strategy     supervisor.Strategy
	Intensity    supervisor.RestartIntensity
	AutoShutdown supervisor.AutoShutdown
	Children     []DistChildSpec

	Cluster *cluster.Cluster
	Remote  *remote.Node

	// OnFatal is invoked if the underlying supervisor's restart
	// intensity is exceeded.
	OnFatal func(error)
}

type placement struct {
	// node/handle describe where the child is currently running;
	// waiting is true while it has no node and is parked until the next
	// NodeUp. lastNode survives a Waiting transition so a later
	// successful placement can still tell it moved.
	node     wire.NodeID
	handle   actor.ActorHandle
	waiting  bool
	lastNode wire.NodeID
}

// childHandle is the supervisor.ChildHandle DistSupervisor hands back per
// child; cancel tears down whatever's watching it (a monitor subscription,
// or a NodeUp waiter) without touching the remote actor itself.
type childHandle struct {
	id     string
	cancel func()
}

func (h *childHandle) ID() string { return h.id }

// DistSupervisor places each DistChildSpec's instance on a cluster node via
// its NodeSelector and restarts it, on a new node if necessary, using
// internal/supervisor's own restart-intensity accounting: a node-down
// failover counts against the same budget as an ordinary crash restart.
type DistSupervisor struct {
	cl     *cluster.Cluster
	remote *remote.Node
	sys    *actor.ActorSystem
	sup    *supervisor.Supervisor

	mu         sync.Mutex
	placements map[string]*placement
	downNodes  map[wire.NodeID]bool

	subMu     sync.Mutex
	listeners map[int]func(MigrationEvent)
	nextSubID int

	unsubscribe func()
}

// Start places and starts every child, then begins tracking cluster
// membership for failover.
func Start(ctx context.Context, cfg Config) (*DistSupervisor, error) {
	if cfg.Cluster == nil || cfg.Remote == nil {
		return nil, errors.New("distsup: Cluster and Remote are required")
	}

	ds := &DistSupervisor{
		cl:         cfg.Cluster,
		remote:     cfg.Remote,
		sys:        cfg.Remote.System(),
		placements: make(map[string]*placement),
		downNodes:  make(map[wire.NodeID]bool),
		listeners:  make(map[int]func(MigrationEvent)),
	}

	childSpecs := make([]supervisor.ChildSpec, 0, len(cfg.Children))
	for _, dc := range cfg.Children {
		dc := dc
		if dc.NodeSelector == nil {
			return nil, fmt.Errorf("distsup: child %q has no NodeSelector", dc.ID)
		}

		childSpecs = append(childSpecs, supervisor.ChildSpec{
			ID: dc.ID,
			Start: func(ctx context.Context, report func(error)) (supervisor.ChildHandle, error) {
				return ds.startChild(ctx, dc, report)
			},
			Stop:            ds.stopChild,
			Restart:         dc.Restart,
			ShutdownTimeout: dc.ShutdownTimeout,
			Significant:     dc.Significant,
		})
	}

	sup, err := supervisor.Start(ctx, supervisor.Config{
		Strategy:     cfg.Strategy,
		Intensity:    cfg.Intensity,
		AutoShutdown: cfg.AutoShutdown,
		Children:     childSpecs,
	}, cfg.OnFatal)
	if err != nil {
		return nil, err
	}
	ds.sup = sup

	ds.unsubscribe = cfg.Cluster.Subscribe(ds.onNodeEvent)

	return ds, nil
}

func (ds *DistSupervisor) startChild(ctx context.Context, spec DistChildSpec,
	report func(error)) (supervisor.ChildHandle, error) {

	ds.mu.Lock()
	exclude := make(map[wire.NodeID]bool, len(ds.downNodes))
	for n := range ds.downNodes {
		exclude[n] = true
	}
	prior, hadPrior := ds.placements[spec.ID]
	lastNode := wire.NodeID("")
	if hadPrior {
		lastNode = prior.lastNode
	}
	ds.mu.Unlock()

	nodeID, ok := spec.NodeSelector(SelectContext{
		Members: ds.cl.Members(),
		Exclude: exclude,
		Self:    ds.cl.Self(),
		Load:    ds.loadOf(spec.ID),
	})
	if !ok {
		log.Infof("distsup: no eligible node for %q, entering Waiting", spec.ID)
		return ds.waitForNode(spec, lastNode, report), nil
	}

	handle, err := ds.remote.Spawn(ctx, spec.BehaviorName, nodeID, spec.Args, true)
	if err != nil {
		return nil, fmt.Errorf("distsup: placing %q on %s: %w", spec.ID, nodeID, err)
	}

	notifyCh, cancelMon := ds.remote.Monitor(ctx, handle)

	ds.mu.Lock()
	ds.placements[spec.ID] = &placement{node: nodeID, handle: handle, lastNode: nodeID}
	ds.mu.Unlock()

	if lastNode != "" && lastNode != nodeID {
		ds.emitMigrated(spec.ID, lastNode, nodeID)
	}

	go func() {
		note, ok := <-notifyCh
		if !ok {
			return
		}
		report(fmt.Errorf("distsup: %s: %s", spec.ID, note.Reason))
	}()

	return &childHandle{id: spec.ID, cancel: cancelMon}, nil
}

// waitForNode parks spec until the next NodeUp, then asks the supervisor
// for a counted restart attempt by reporting a (non-fatal, to the process)
// error. It fires at most once; if a caller Stops the child first, cancel
// unsubscribes without ever reporting.
func (ds *DistSupervisor) waitForNode(spec DistChildSpec, lastNode wire.NodeID,
	report func(error)) supervisor.ChildHandle {

	ds.mu.Lock()
	ds.placements[spec.ID] = &placement{waiting: true, lastNode: lastNode}
	ds.mu.Unlock()

	var once sync.Once
	var unsubscribe func()
	unsubscribe = ds.cl.Subscribe(func(ev cluster.NodeEvent) {
		if _, ok := ev.(cluster.NodeUp); !ok {
			return
		}
		once.Do(func() {
			go unsubscribe()
			report(fmt.Errorf("distsup: %s: node became available, retrying placement", spec.ID))
		})
	})

	return &childHandle{
		id: spec.ID,
		cancel: func() {
			once.Do(func() { unsubscribe() })
		},
	}
}

func (ds *DistSupervisor) stopChild(ctx context.Context, h supervisor.ChildHandle) error {
	ch, ok := h.(*childHandle)
	if !ok {
		return fmt.Errorf("distsup: unexpected child handle type %T", h)
	}

	// Stop watching before tearing anything down, so the watcher can't
	// report a spurious crash for a stop we ourselves initiated.
	ch.cancel()

	ds.mu.Lock()
	p, ok := ds.placements[ch.id]
	delete(ds.placements, ch.id)
	ds.mu.Unlock()

	if !ok || p.waiting {
		return nil
	}

	if p.handle.IsLocal() {
		ds.sys.StopAndRemoveActor(p.handle.ID)
		return nil
	}

	// No wire message exists to force-stop a remotely placed actor; a
	// remote child is left running until it exits on its own or its node
	// goes down. See DESIGN.md for why this is accepted rather than
	// extending the wire protocol.
	log.Debugf("distsup: %s was placed on %s, which has no remote force-stop", ch.id, p.node)

	return nil
}

func (ds *DistSupervisor) loadOf(specID string) func(wire.NodeID) int {
	return func(n wire.NodeID) int {
		ds.mu.Lock()
		defer ds.mu.Unlock()

		count := 0
		for id, p := range ds.placements {
			if id == specID {
				continue
			}
			if !p.waiting && p.node == n {
				count++
			}
		}
		return count
	}
}

func (ds *DistSupervisor) onNodeEvent(ev cluster.NodeEvent) {
	switch ev.(type) {
	case cluster.NodeDown:
		ds.mu.Lock()
		ds.downNodes[ev.Node()] = true
		ds.mu.Unlock()
	case cluster.NodeUp:
		ds.mu.Lock()
		delete(ds.downNodes, ev.Node())
		ds.mu.Unlock()
	}
}

// Subscribe registers fn to be called for every MigrationEvent. The
// returned function unsubscribes.
func (ds *DistSupervisor) Subscribe(fn func(MigrationEvent)) (unsubscribe func()) {
	ds.subMu.Lock()
	id := ds.nextSubID
	ds.nextSubID++
	ds.listeners[id] = fn
	ds.subMu.Unlock()

	return func() {
		ds.subMu.Lock()
		delete(ds.listeners, id)
		ds.subMu.Unlock()
	}
}

func (ds *DistSupervisor) emitMigrated(childID string, from, to wire.NodeID) {
	ds.subMu.Lock()
	fns := make([]func(MigrationEvent), 0, len(ds.listeners))
	for _, fn := range ds.listeners {
		fns = append(fns, fn)
	}
	ds.subMu.Unlock()

	ev := MigrationEvent{ChildID: childID, From: from, To: to}
	for _, fn := range fns {
		go fn(ev)
	}
}

// Stop terminates every child and the underlying supervisor.
func (ds *DistSupervisor) Stop(ctx context.Context) {
	if ds.unsubscribe != nil {
		ds.unsubscribe()
	}
	ds.sup.Stop(ctx)
}

// Done is closed once Stop has finished terminating all children.
func (ds *DistSupervisor) Done() <-chan struct{} { return ds.sup.Done() }

// Err returns the fatal error, if the underlying supervisor failed its own
// restart-intensity bound.
func (ds *DistSupervisor) Err() error { return ds.sup.Err() }

// Placement reports the node and handle a child is currently running on,
// and whether it exists and isn't waiting for a node to come back.
func (ds *DistSupervisor) Placement(childID string) (wire.NodeID, actor.ActorHandle, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	p, ok := ds.placements[childID]
	if !ok || p.waiting {
		return "", actor.ActorHandle{}, false
	}
	return p.node, p.handle, true
}
