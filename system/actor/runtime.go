package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/system/conflict"
	"github.com/r3e-network/flowrt/system/eventstore"
)

// Config tunes the runtime's scheduler and resource limits.
type Config struct {
	Workers         int
	MailboxCapacity int
	HotCacheSize    int // size of the LRU that tracks spawned cells; a cell evicted from it stays in the cell map and is not replayed
	RestartPolicy   RestartPolicy
	AskTimeout      time.Duration

	// NodeID identifies this runtime instance in emitted vector clocks.
	// Only meaningful once more than one node writes to the same actor.
	NodeID string

	// ConflictStrategy resolves concurrent writes detected when a Command
	// carries a VectorClock that is concurrent with an already-applied
	// event of the same type (§4.7). Defaults to LastWriteWins.
	ConflictStrategy conflict.Strategy
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = 256
	}
	if c.HotCacheSize <= 0 {
		c.HotCacheSize = 4096
	}
	if c.RestartPolicy.MaxRestarts == 0 {
		c.RestartPolicy = DefaultRestartPolicy()
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = 5 * time.Second
	}
	if c.NodeID == "" {
		c.NodeID = "node-1"
	}
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = conflict.LastWriteWins
	}
	return c
}

// Runtime schedules actor cells across a fixed worker pool reading from a
// shared runnable queue, the same channel-plus-worker-pool shape as the
// teacher's event dispatcher: a bounded queue, N goroutines draining it,
// and stop/done channels for clean shutdown. Unlike the dispatcher, one
// queue entry here is an actor ID, not a unit of work — a worker pops an
// actor, drains exactly one of its pending messages, and (if more remain)
// re-enqueues the actor so any free worker — not necessarily the same one —
// can pick it up next. This is the "work stealing permitted" scheduling
// spec.md calls for while keeping per-actor processing strictly serial.
type Runtime struct {
	cfg   Config
	store eventstore.Store
	log   *logging.Logger

	mu    sync.RWMutex
	cells map[string]*cell // key: tenantID + "/" + actorID
	hot   *lru.Cache[string, *cell]

	runnable chan string
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Runtime. Call Start to begin processing.
func New(store eventstore.Store, log *logging.Logger, cfg Config) *Runtime {
	cfg = cfg.withDefaults()
	hot, _ := lru.New[string, *cell](cfg.HotCacheSize)
	return &Runtime{
		cfg:      cfg,
		store:    store,
		log:      log,
		cells:    make(map[string]*cell),
		hot:      hot,
		runnable: make(chan string, cfg.Workers*64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start spawns the worker pool.
func (r *Runtime) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	go func() {
		r.wg.Wait()
		close(r.doneCh)
	}()
}

// Stop signals workers to drain and exit, then waits for them.
func (r *Runtime) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Runtime) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case actorKey := <-r.runnable:
			r.drainOne(ctx, actorKey)
		}
	}
}

// drainOne pops and processes exactly one pending message for the actor
// identified by actorKey, then re-enqueues it if its mailbox is non-empty.
func (r *Runtime) drainOne(ctx context.Context, actorKey string) {
	r.mu.RLock()
	c, ok := r.cells[actorKey]
	r.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case env := <-c.mbox.ch:
		r.process(ctx, c, env)
	default:
		return
	}

	if len(c.mbox.ch) > 0 {
		select {
		case r.runnable <- actorKey:
		default:
			if r.log != nil {
				r.log.Warn(ctx, "actor runtime: runnable queue full, actor will stall until re-scheduled", nil)
			}
		}
	}
}

func (r *Runtime) process(ctx context.Context, c *cell, env envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		if env.reply != nil {
			env.reply <- askResult{err: ErrActorStopped}
		}
		return
	}

	events, resp, err := r.invoke(ctx, c, env.cmd)
	if err != nil {
		withinBudget, attempt := r.cfg.RestartPolicy.recordCrash(c, time.Now())
		if r.log != nil {
			r.log.LogActorRestart(ctx, c.actorID, attempt, err)
		}
		if !withinBudget {
			c.stopped = true
			if env.reply != nil {
				env.reply <- askResult{err: fmt.Errorf("actor stopped after %d restarts: %w", attempt, err)}
			}
			return
		}
		if delay := r.cfg.RestartPolicy.Backoff; delay != nil {
			time.Sleep(delay(attempt))
		}
		r.restoreFromStore(ctx, c)
		if env.reply != nil {
			env.reply <- askResult{err: err}
		}
		return
	}

	if len(events) > 0 {
		events = r.resolveConflicts(c, env.cmd.VectorClock, env.cmd.CausalDependencies, events)
	}

	if len(events) > 0 {
		if appendErr := r.store.Append(ctx, c.tenantID, c.actorID, c.version, events); appendErr != nil {
			if env.reply != nil {
				env.reply <- askResult{err: appendErr}
			}
			return
		}
		state := c.state
		for i := range events {
			c.version++
			events[i].Version = c.version
			next, reduceErr := c.behavior.Reduce(state, events[i])
			if reduceErr != nil {
				if env.reply != nil {
					env.reply <- askResult{err: reduceErr}
				}
				return
			}
			state = next
			c.clock = conflict.Clock(events[i].VectorClock)
			c.lastByType[events[i].Type] = events[i]
		}
		c.state = state
	}

	if env.reply != nil {
		env.reply <- askResult{resp: Response{Value: resp, Version: c.version}}
	}
}

// resolveConflicts stamps each newly produced event with this node's vector
// clock and, when the triggering command carried the caller's last-observed
// clock, checks it against the most recently applied event of the same
// type. A concurrent pair is run through cfg.ConflictStrategy; if the prior
// event wins, the new event is dropped (the caller was acting on stale
// state); a merge strategy substitutes the synthesized event in its place.
func (r *Runtime) resolveConflicts(c *cell, callerClock conflict.Clock, callerDeps []string, events []eventstore.Event) []eventstore.Event {
	out := events[:0]
	for _, evt := range events {
		if evt.EventID == "" {
			evt.EventID = eventstore.NewEventID()
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now()
		}
		if len(evt.CausalDependencies) == 0 {
			evt.CausalDependencies = callerDeps
		}
		if callerClock != nil {
			if prior, ok := c.lastByType[evt.Type]; ok {
				candidate := evt
				candidate.VectorClock = callerClock
				if conflict.Conflicting(prior, candidate) {
					resolved, err := conflict.Resolve(r.cfg.ConflictStrategy, []eventstore.Event{prior, candidate})
					if err == nil {
						if resolved.EventID == prior.EventID {
							if r.log != nil {
								r.log.Warn(context.Background(), "actor runtime: dropped event superseded by concurrent write", map[string]any{"actorId": c.actorID, "type": evt.Type})
							}
							continue
						}
						if resolved.EventID != candidate.EventID {
							evt = resolved
						}
					}
				}
			}
		}
		evt.VectorClock = conflict.Merge(c.clock, callerClock).Tick(r.cfg.NodeID)
		out = append(out, evt)
	}
	return out
}

func (r *Runtime) invoke(ctx context.Context, c *cell, cmd Command) (events []eventstore.Event, resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("actor panic: %v", rec)
		}
	}()
	return c.behavior.Handle(ctx, c.state, cmd)
}

func (r *Runtime) restoreFromStore(ctx context.Context, c *cell) {
	snap, events, err := eventstore.LoadForReplay(ctx, r.store, c.tenantID, c.actorID)
	if err != nil {
		return
	}
	base := c.behavior.Initial()
	version := uint64(0)
	if snap.Version > 0 {
		base = snap.State
		version = snap.Version
	}
	state, err := eventstore.Rebuild(c.behavior.Reduce, base, events)
	if err != nil {
		return
	}
	if len(events) > 0 {
		version = events[len(events)-1].Version
	}
	c.state = state
	c.version = version
}

func key(tenantID, actorID string) string { return tenantID + "/" + actorID }

// Spawn registers an actor cell, replaying its history from the event store
// if it already has one. Spawning an already-live actor is a no-op.
func (r *Runtime) Spawn(ctx context.Context, tenantID, actorID string, behavior Behavior) error {
	k := key(tenantID, actorID)

	r.mu.Lock()
	if _, exists := r.cells[k]; exists {
		r.mu.Unlock()
		return nil
	}
	c := newCell(tenantID, actorID, behavior, r.cfg.MailboxCapacity)
	r.cells[k] = c
	r.hot.Add(k, c)
	r.mu.Unlock()

	r.restoreFromStore(ctx, c)
	return nil
}

// Tell sends a fire-and-forget command; it returns ErrMailboxFull if the
// actor's mailbox has no room, never blocking the caller.
func (r *Runtime) Tell(ctx context.Context, tenantID, actorID string, cmd Command) error {
	c, err := r.cellFor(tenantID, actorID)
	if err != nil {
		return err
	}
	if !c.mbox.offer(envelope{ctx: ctx, cmd: cmd}) {
		return ErrMailboxFull
	}
	r.schedule(key(tenantID, actorID))
	return nil
}

// Ask sends a command and waits for the actor's response or ctx/AskTimeout,
// whichever comes first.
func (r *Runtime) Ask(ctx context.Context, tenantID, actorID string, cmd Command) (Response, error) {
	c, err := r.cellFor(tenantID, actorID)
	if err != nil {
		return Response{}, err
	}
	reply := make(chan askResult, 1)
	if !c.mbox.offer(envelope{ctx: ctx, cmd: cmd, reply: reply}) {
		return Response{}, ErrMailboxFull
	}
	r.schedule(key(tenantID, actorID))

	timeout := r.cfg.AskTimeout
	select {
	case res := <-reply:
		return res.resp, res.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-time.After(timeout):
		return Response{}, fmt.Errorf("actor: ask timed out after %s", timeout)
	}
}

func (r *Runtime) cellFor(tenantID, actorID string) (*cell, error) {
	k := key(tenantID, actorID)
	r.mu.RLock()
	c, ok := r.cells[k]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("actor: %s not spawned", k)
	}
	return c, nil
}

func (r *Runtime) schedule(actorKey string) {
	select {
	case r.runnable <- actorKey:
	default:
		if r.log != nil {
			r.log.Warn(context.Background(), "actor runtime: runnable queue saturated", nil)
		}
	}
}

// Stats reports per-tenant actor liveness for health endpoints.
type Stats struct {
	LiveActors int
}

func (r *Runtime) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{LiveActors: len(r.cells)}
}
