// Package feed propagates committed reservation-state transitions to
// subscribers so that "seats remaining" displays never have to poll.
// Delivery is snapshot-based and at-least-once: every message is the
// full current seat counter of one ride, so a lost or duplicated
// notification can only make a subscriber stale, never wrong.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/WebabyApps/RideMate/internal/model"
)

// channelPrefix namespaces the Redis pub/sub channels, one per ride.
const channelPrefix = "ride.state."

// SnapshotFunc loads the current RideState for a ride so that a new
// subscription always begins with a full snapshot before any deltas.
type SnapshotFunc func(ctx context.Context, rideID string) (model.RideState, error)

// Feed fans committed RideState snapshots out to per-ride subscribers.
// When a Redis client is configured it also bridges snapshots across
// instances over pub/sub; without one it degrades to in-process
// delivery, the same graceful-degradation convention used for the rate
// limiter.  Per-ride ordering is enforced with the snapshot version:
// a subscriber never observes a stale state after a fresher one.
type Feed struct {
	snapshot SnapshotFunc
	rdb      *redis.Client

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// New constructs a Feed.  rdb may be nil.
func New(snapshot SnapshotFunc, rdb *redis.Client) *Feed {
	return &Feed{
		snapshot: snapshot,
		rdb:      rdb,
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one observer's lazy, unbounded sequence of RideState
// snapshots.  The channel is conflated: a slow consumer skips straight
// to the newest state instead of draining a backlog of superseded ones.
type Subscription struct {
	feed   *Feed
	rideID string
	ch     chan model.RideState

	mu      sync.Mutex
	lastVer int64
	closed  bool
}

// Subscribe registers an observer for a ride and seeds it with a full
// current snapshot.  It returns ErrRideNotFound (from the snapshot
// source) when the ride does not exist.
func (f *Feed) Subscribe(ctx context.Context, rideID string) (*Subscription, error) {
	st, err := f.snapshot(ctx, rideID)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		feed:    f,
		rideID:  rideID,
		ch:      make(chan model.RideState, 1),
		lastVer: -1,
	}
	f.mu.Lock()
	set, ok := f.subs[rideID]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[rideID] = set
	}
	set[sub] = struct{}{}
	f.mu.Unlock()

	// Delivered through the version gate: if a fresher state raced in
	// between registration and now, the older snapshot is simply dropped
	// and the fresher delivery stands in as the initial snapshot.
	sub.deliver(st)
	return sub, nil
}

// Updates returns the snapshot stream.  The channel is closed by Close.
func (s *Subscription) Updates() <-chan model.RideState { return s.ch }

// RideID returns the ride this subscription observes.
func (s *Subscription) RideID() string { return s.rideID }

// Close unsubscribes and releases resources synchronously.  No further
// deliveries occur after Close returns.
func (s *Subscription) Close() {
	s.feed.mu.Lock()
	if set, ok := s.feed.subs[s.rideID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.feed.subs, s.rideID)
		}
	}
	s.feed.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// deliver hands a snapshot to the subscriber unless it is stale or the
// subscription is closed.  The pending slot holds at most one state;
// an undelivered older state is replaced by the newer one.
func (s *Subscription) deliver(st model.RideState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || st.Version <= s.lastVer {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- st
	s.lastVer = st.Version
}

// Publish emits a committed snapshot.  Local subscribers are served
// directly; with Redis configured the snapshot is also published for
// other instances.  The Run loop's re-delivery of our own message is
// discarded by the per-subscriber version gate, keeping delivery
// at-least-once without regressions.
func (f *Feed) Publish(ctx context.Context, st model.RideState) error {
	f.deliverLocal(st)
	if f.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, channelPrefix+st.RideID, payload).Err()
}

// Run consumes the cross-instance snapshot channels until ctx is
// cancelled.  It is a no-op without a Redis client.
func (f *Feed) Run(ctx context.Context) {
	if f.rdb == nil {
		<-ctx.Done()
		return
	}
	sub := f.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var st model.RideState
			if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
				log.Printf("feed: drop malformed snapshot on %s: %v", msg.Channel, err)
				continue
			}
			f.deliverLocal(st)
		}
	}
}

func (f *Feed) deliverLocal(st model.RideState) {
	f.mu.Lock()
	targets := make([]*Subscription, 0, len(f.subs[st.RideID]))
	for sub := range f.subs[st.RideID] {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(st)
	}
}
