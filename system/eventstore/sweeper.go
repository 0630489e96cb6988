package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/flowrt/infrastructure/logging"
)

// SnapshotPolicy decides when an actor is due for a new snapshot: either it
// has accumulated at least EveryNEvents since the last one, or the last one
// is older than MaxAge (opportunistic rebuild even on a quiet actor).
type SnapshotPolicy struct {
	EveryNEvents uint64
	MaxAge       time.Duration
}

func (p SnapshotPolicy) due(snapVersion uint64, snapAt time.Time, currentVersion uint64, now time.Time) bool {
	if p.EveryNEvents > 0 && currentVersion-snapVersion >= p.EveryNEvents {
		return true
	}
	if p.MaxAge > 0 && currentVersion > snapVersion && now.Sub(snapAt) >= p.MaxAge {
		return true
	}
	return false
}

// InitialState returns the zero-value encoded state for an actor kind, used
// when no snapshot exists yet.
type InitialState func() json.RawMessage

// Sweeper periodically scans tenants for actors due a fresh snapshot and
// rebuilds+persists one, following the teacher's pattern of driving
// maintenance work off a robfig/cron schedule rather than a bespoke ticker.
type Sweeper struct {
	store    Store
	reducer  Reducer
	initial  InitialState
	policy   SnapshotPolicy
	tenants  func() []string
	log      *logging.Logger
	cronRun  *cron.Cron
	schedule string
}

// NewSweeper constructs a sweeper. tenants returns the current tenant set to
// scan; reducer/initial describe how to fold an actor's events into state.
func NewSweeper(store Store, reducer Reducer, initial InitialState, policy SnapshotPolicy, tenants func() []string, log *logging.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Sweeper{
		store:    store,
		reducer:  reducer,
		initial:  initial,
		policy:   policy,
		tenants:  tenants,
		log:      log,
		schedule: schedule,
	}
}

// Start schedules the sweep and returns immediately; call Stop to halt it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cronRun = cron.New()
	_, err := s.cronRun.AddFunc(s.schedule, func() {
		s.sweepOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cronRun.Start()
	return nil
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cronRun != nil {
		<-s.cronRun.Stop().Done()
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()
	for _, tenantID := range s.tenants() {
		actorIDs, err := s.store.ActorIDs(ctx, tenantID)
		if err != nil {
			if s.log != nil {
				s.log.WithContext(ctx).WithError(err).Warn("snapshot sweep: list actors failed")
			}
			continue
		}
		for _, actorID := range actorIDs {
			s.maybeSnapshot(ctx, tenantID, actorID, now)
		}
	}
}

func (s *Sweeper) maybeSnapshot(ctx context.Context, tenantID, actorID string, now time.Time) {
	currentVersion, err := s.store.CurrentVersion(ctx, tenantID, actorID)
	if err != nil || currentVersion == 0 {
		return
	}

	existing, hasSnap, err := s.store.LoadSnapshot(ctx, tenantID, actorID)
	if err != nil {
		return
	}
	snapVersion, snapAt := uint64(0), now
	if hasSnap {
		snapVersion, snapAt = existing.Version, existing.Timestamp
	}
	if !s.policy.due(snapVersion, snapAt, currentVersion, now) {
		return
	}

	baseState := s.initial()
	if hasSnap {
		baseState = existing.State
	}
	events, err := s.store.Load(ctx, tenantID, actorID, snapVersion)
	if err != nil {
		return
	}
	state, err := Rebuild(s.reducer, baseState, events)
	if err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).WithError(err).Warn("snapshot sweep: rebuild failed")
		}
		return
	}

	lastEventID := ""
	if len(events) > 0 {
		lastEventID = events[len(events)-1].EventID
	} else if hasSnap {
		lastEventID = existing.LastEventID
	}
	checksum, err := ChecksumState(state)
	if err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).WithError(err).Warn("snapshot sweep: checksum failed")
		}
		return
	}

	snap := Snapshot{
		TenantID:    tenantID,
		ActorID:     actorID,
		Version:     currentVersion,
		State:       state,
		LastEventID: lastEventID,
		Timestamp:   now,
		Checksum:    checksum,
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil && s.log != nil {
		s.log.WithContext(ctx).WithError(err).Warn("snapshot sweep: save failed")
	}
}
