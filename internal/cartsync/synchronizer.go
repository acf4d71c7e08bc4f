// Package cartsync keeps the item count of the active cart current.
//
// A Synchronizer re-reads the cart on three triggers: Start (mount), an
// in-process bus emission, and a live-feed notification for the active cart
// key. Refreshes are not serialized against each other; with DiscardStale set
// a result that started before the last applied one is dropped.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/angelmondragon/dashbite-backend/pkg/metrics"
)

// ErrReadFailure wraps cart read errors returned from Refresh.
var ErrReadFailure = errors.New("cart read failed")

const (
	triggerMount  = "mount"
	triggerBus    = "bus"
	triggerFeed   = "feed"
	triggerManual = "manual"
)

// Resolver yields the active cart identity.
type Resolver interface {
	Resolve(ctx context.Context) (cartkey.Identity, error)
}

// CartReader reads the lines of a cart.
type CartReader interface {
	ReadCart(ctx context.Context, identity cartkey.Identity) ([]carts.Line, error)
}

// Signals is the in-process "cart changed" channel.
type Signals interface {
	Subscribe(fn events.Handler) (unsubscribe func())
}

// LiveFeed delivers change notifications for one cart key.
type LiveFeed interface {
	Subscribe(ctx context.Context, cartKey string, fn events.Handler) (func(), error)
}

// Options configures a Synchronizer. Feed, OnChange, Metrics and Logger are optional.
type Options struct {
	Resolver     Resolver
	Reader       CartReader
	Signals      Signals
	Feed         LiveFeed
	DiscardStale bool
	OnChange     func(count int)
	Metrics      *metrics.CartMetrics
	Logger       *logger.Logger
}

// Synchronizer observes the active cart and exposes its item count.
type Synchronizer struct {
	resolver     Resolver
	reader       CartReader
	signals      Signals
	feed         LiveFeed
	discardStale bool
	onChange     func(int)
	metrics      *metrics.CartMetrics
	logg         *logger.Logger

	mu         sync.Mutex
	count      int
	identity   cartkey.Identity
	nextSeq    uint64
	appliedSeq uint64
	active     bool
	runCtx     context.Context
	cancel     context.CancelFunc
	unsubBus   func()
	inflight   sync.WaitGroup

	feedMu    sync.Mutex
	feedKey   string
	feedSeq   uint64
	unsubFeed func()
}

// New validates opts and returns an unmounted synchronizer with count 0.
func New(opts Options) (*Synchronizer, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("cart key resolver required")
	}
	if opts.Reader == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if opts.Signals == nil {
		return nil, fmt.Errorf("change signals required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Synchronizer{
		resolver:     opts.Resolver,
		reader:       opts.Reader,
		signals:      opts.Signals,
		feed:         opts.Feed,
		discardStale: opts.DiscardStale,
		onChange:     opts.OnChange,
		metrics:      opts.Metrics,
		logg:         logg,
	}, nil
}

// Start subscribes to the bus and performs the initial refresh. It is a no-op
// while already started. The initial refresh error is returned but the
// subscriptions stay in place, so later triggers retry.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.active = true
	s.unsubBus = s.signals.Subscribe(func(events.Change) { s.trigger(triggerBus) })
	runCtx := s.runCtx
	s.mu.Unlock()

	return s.refresh(runCtx, triggerMount)
}

// Stop releases the bus and feed subscriptions and waits for trigger-driven
// refreshes to finish. Calling Stop on a stopped synchronizer is harmless.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.cancel()
	unsubBus := s.unsubBus
	s.unsubBus = nil
	s.mu.Unlock()

	if unsubBus != nil {
		unsubBus()
	}
	s.inflight.Wait()

	s.feedMu.Lock()
	if s.unsubFeed != nil {
		s.unsubFeed()
	}
	s.unsubFeed = nil
	s.feedKey = ""
	s.feedSeq = 0
	s.feedMu.Unlock()
}

// Refresh re-reads the active cart and applies its count. A failed identity
// resolution zeroes the count; a failed read keeps the previous count and
// returns an error wrapping ErrReadFailure.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.refresh(ctx, triggerManual)
}

// Count returns the last applied count.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Identity returns the identity behind the last applied count.
func (s *Synchronizer) Identity() cartkey.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Synchronizer) trigger(source string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		_ = s.refresh(ctx, source)
	}()
}

func (s *Synchronizer) refresh(ctx context.Context, source string) error {
	started := time.Now()
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	identity, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.logg.Warn(ctx, "cart identity unavailable, showing empty cart: "+err.Error())
		if s.apply(seq, cartkey.Identity{}, 0) {
			s.syncFeed(seq, cartkey.Identity{})
		}
		s.metrics.ObserveRefresh(source, metrics.OutcomeNoIdentity, time.Since(started))
		return nil
	}

	logCtx := s.logg.WithCartKey(ctx, identity.Value, string(identity.Scope))
	s.syncFeed(seq, identity)

	lines, err := s.reader.ReadCart(ctx, identity)
	if err != nil {
		s.metrics.ObserveRefresh(source, metrics.OutcomeReadError, time.Since(started))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logg.Error(logCtx, "cart read failed, keeping previous count", err)
		return fmt.Errorf("%w: %w", ErrReadFailure, err)
	}

	outcome := metrics.OutcomeApplied
	if s.apply(seq, identity, carts.CountItems(lines)) {
		s.syncFeed(seq, identity)
	} else {
		outcome = metrics.OutcomeStale
		s.logg.Debug(logCtx, "discarding stale cart count")
	}
	s.metrics.ObserveRefresh(source, outcome, time.Since(started))
	return nil
}

func (s *Synchronizer) apply(seq uint64, identity cartkey.Identity, count int) bool {
	s.mu.Lock()
	if s.discardStale && seq < s.appliedSeq {
		s.mu.Unlock()
		return false
	}
	if seq > s.appliedSeq {
		s.appliedSeq = seq
	}
	s.count = count
	s.identity = identity
	onChange := s.onChange
	s.mu.Unlock()

	s.metrics.SetCount(count)
	if onChange != nil {
		onChange(count)
	}
	return true
}

// syncFeed keeps exactly one live subscription, for the resolved cart key,
// while the synchronizer is started. With DiscardStale set, a refresh older
// than the last one that moved the feed or applied a count leaves it alone.
func (s *Synchronizer) syncFeed(seq uint64, identity cartkey.Identity) {
	if s.feed == nil {
		return
	}
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.mu.Lock()
	active, ctx, applied := s.active, s.runCtx, s.appliedSeq
	s.mu.Unlock()
	if !active {
		return
	}
	if s.discardStale && (seq < s.feedSeq || seq < applied) {
		return
	}
	if seq > s.feedSeq {
		s.feedSeq = seq
	}
	if identity.Value == s.feedKey {
		return
	}

	if s.unsubFeed != nil {
		s.unsubFeed()
		s.unsubFeed = nil
		s.feedKey = ""
	}
	if identity.IsZero() {
		return
	}

	unsub, err := s.feed.Subscribe(ctx, identity.Value, func(events.Change) { s.trigger(triggerFeed) })
	if err != nil {
		logCtx := s.logg.WithCartKey(ctx, identity.Value, string(identity.Scope))
		s.logg.Warn(logCtx, "live cart feed unavailable: "+err.Error())
		return
	}
	s.unsubFeed = unsub
	s.feedKey = identity.Value
}
