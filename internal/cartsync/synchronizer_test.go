package cartsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type resolverFunc func(ctx context.Context) (cartkey.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context) (cartkey.Identity, error) { return f(ctx) }

type readerFunc func(ctx context.Context, id cartkey.Identity) ([]carts.Line, error)

func (f readerFunc) ReadCart(ctx context.Context, id cartkey.Identity) ([]carts.Line, error) {
	return f(ctx, id)
}

func staticResolver(value string) Resolver {
	return resolverFunc(func(context.Context) (cartkey.Identity, error) {
		return cartkey.Identity{Value: value, Scope: cartkey.ScopeDevice}, nil
	})
}

// memCarts maps cart keys to line quantities and is safe for concurrent use.
type memCarts struct {
	mu    sync.Mutex
	qty   map[string][]int
	err   error
	reads int
}

func newMemCarts() *memCarts {
	return &memCarts{qty: map[string][]int{}}
}

func (m *memCarts) set(key string, quantities ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qty[key] = quantities
}

func (m *memCarts) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memCarts) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *memCarts) ReadCart(_ context.Context, id cartkey.Identity) ([]carts.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return lines(m.qty[id.Value]...), nil
}

func lines(quantities ...int) []carts.Line {
	out := make([]carts.Line, 0, len(quantities))
	for _, q := range quantities {
		out = append(out, carts.Line{Quantity: q})
	}
	return out
}

type toggleSession struct {
	mu     sync.Mutex
	userID string
}

func (s *toggleSession) set(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

func (s *toggleSession) IsAuthenticated(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID != ""
}

func (s *toggleSession) CurrentUserID(context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

type memStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type fakeFeed struct {
	mu       sync.Mutex
	handlers map[string]events.Handler
	history  []string
	err      error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: map[string]events.Handler{}}
}

func (f *fakeFeed) Subscribe(_ context.Context, key string, fn events.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.handlers[key] = fn
	f.history = append(f.history, "+"+key)
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.handlers, key)
			f.history = append(f.history, "-"+key)
		})
	}, nil
}

func (f *fakeFeed) notify(key string) bool {
	f.mu.Lock()
	fn := f.handlers[key]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(events.Change{CartKey: key})
	return true
}

func (f *fakeFeed) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...), len(f.handlers)
}

func newSynchronizer(t *testing.T, opts Options) *Synchronizer {
	t.Helper()
	if opts.Signals == nil {
		bus := events.NewBus()
		t.Cleanup(bus.Close)
		opts.Signals = bus
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Resolver: staticResolver("a")})
	assert.Error(t, err)
	_, err = New(Options{Resolver: staticResolver("a"), Reader: newMemCarts()})
	assert.Error(t, err)
}

func TestStartSumsQuantities(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemCarts()
	store.set("abc", 2, 1, 3)
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: store})

	assert.Equal(t, 0, s.Count())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 6, s.Count())
	assert.Equal(t, "abc", s.Identity().Value)
}

func TestRefreshEmptyCartIsZero(t *testing.T) {
	store := newMemCarts()
	s := newSynchronizer(t, Options{Resolver: staticResolver("empty"), Reader: store})

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 1, store.readCount())
}

func TestRefreshReadFailureKeepsCount(t *testing.T) {
	store := newMemCarts()
	store.set("abc", 4)
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: store})

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 4, s.Count())

	store.fail(errors.New("network down"))
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadFailure)
	assert.Equal(t, 4, s.Count())
}

func TestRefreshWithoutIdentityShowsEmptyCart(t *testing.T) {
	store := newMemCarts()
	store.set("abc", 4)
	var broken atomic.Bool
	resolver := resolverFunc(func(context.Context) (cartkey.Identity, error) {
		if broken.Load() {
			return cartkey.Identity{}, cartkey.ErrStorageUnavailable
		}
		return cartkey.Identity{Value: "abc", Scope: cartkey.ScopeDevice}, nil
	})
	s := newSynchronizer(t, Options{Resolver: resolver, Reader: store})

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 4, s.Count())

	broken.Store(true)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 0, s.Count())
	assert.True(t, s.Identity().IsZero())
	assert.Equal(t, 1, store.readCount())
}

func TestBusEmissionTriggersRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := events.NewBus()
	defer bus.Close()
	store := newMemCarts()
	store.set("abc", 1)
	var seen []int
	var seenMu sync.Mutex
	s := newSynchronizer(t, Options{
		Resolver: staticResolver("abc"),
		Reader:   store,
		Signals:  bus,
		OnChange: func(count int) {
			seenMu.Lock()
			defer seenMu.Unlock()
			seen = append(seen, count)
		},
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Equal(t, 1, s.Count())

	store.set("abc", 1, 2)
	assert.Equal(t, 1, bus.Emit(events.Change{CartKey: "abc", Op: events.OpAdd}))
	require.Eventually(t, func() bool { return s.Count() == 3 }, waitFor, tick)

	seenMu.Lock()
	defer seenMu.Unlock()
	assert.Equal(t, []int{1, 3}, seen)
}

func TestLogoutFallsBackToDeviceCart(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := events.NewBus()
	defer bus.Close()
	session := &toggleSession{userID: "user-9"}
	resolver := cartkey.NewResolver(cartkey.Params{
		Session: session,
		Storage: &memStorage{values: map[string]string{cartkey.DefaultDeviceKeyName: "device-1"}},
	})
	store := newMemCarts()
	store.set("user-9", 5)
	store.set("device-1", 2)
	s := newSynchronizer(t, Options{Resolver: resolver, Reader: store, Signals: bus})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.Equal(t, 5, s.Count())

	session.set("")
	bus.Emit(events.Change{Op: events.OpLogout})
	require.Eventually(t, func() bool { return s.Count() == 2 }, waitFor, tick)
	assert.Equal(t, cartkey.Identity{Value: "device-1", Scope: cartkey.ScopeDevice}, s.Identity())
}

func runOverlappingRefreshes(t *testing.T, discardStale bool) int {
	t.Helper()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	reader := readerFunc(func(context.Context, cartkey.Identity) ([]carts.Line, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return lines(9), nil
		}
		return lines(3), nil
	})
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: reader, DiscardStale: discardStale})

	slow := make(chan error, 1)
	go func() { slow <- s.Refresh(context.Background()) }()
	<-entered

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 3, s.Count())

	close(release)
	require.NoError(t, <-slow)
	return s.Count()
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert.Equal(t, 3, runOverlappingRefreshes(t, true))
}

func TestLastCompletedRefreshWinsWhenStaleAllowed(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert.Equal(t, 9, runOverlappingRefreshes(t, false))
}

func TestStartIsIdempotentAndStopReleasesListener(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := events.NewBus()
	defer bus.Close()
	store := newMemCarts()
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: store, Signals: bus})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, bus.Len())
	assert.Equal(t, 1, store.readCount())

	s.Stop()
	s.Stop()
	assert.Equal(t, 0, bus.Len())

	assert.Equal(t, 0, bus.Emit(events.Change{CartKey: "abc"}))
	assert.Equal(t, 1, store.readCount())
}

func TestLiveFeedFollowsIdentity(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &toggleSession{userID: "user-9"}
	resolver := cartkey.NewResolver(cartkey.Params{
		Session: session,
		Storage: &memStorage{values: map[string]string{cartkey.DefaultDeviceKeyName: "device-1"}},
	})
	store := newMemCarts()
	store.set("user-9", 1)
	feed := newFakeFeed()
	s := newSynchronizer(t, Options{Resolver: resolver, Reader: store, Feed: feed})

	require.NoError(t, s.Start(context.Background()))
	history, live := feed.snapshot()
	assert.Equal(t, []string{"+user-9"}, history)
	assert.Equal(t, 1, live)

	store.set("user-9", 1, 1, 1)
	require.True(t, feed.notify("user-9"))
	require.Eventually(t, func() bool { return s.Count() == 3 }, waitFor, tick)

	session.set("")
	require.NoError(t, s.Refresh(context.Background()))
	history, live = feed.snapshot()
	assert.Equal(t, []string{"+user-9", "-user-9", "+device-1"}, history)
	assert.Equal(t, 1, live)

	require.NoError(t, s.Refresh(context.Background()))
	history, _ = feed.snapshot()
	assert.Len(t, history, 3, "same identity must not resubscribe")

	s.Stop()
	history, live = feed.snapshot()
	assert.Equal(t, "-device-1", history[len(history)-1])
	assert.Equal(t, 0, live)
	assert.False(t, feed.notify("device-1"))
}

func TestStaleIdentityDoesNotMoveLiveFeed(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	resolver := resolverFunc(func(context.Context) (cartkey.Identity, error) {
		if calls.Add(1) == 2 {
			close(entered)
			<-release
			return cartkey.Identity{Value: "user-9", Scope: cartkey.ScopeUser}, nil
		}
		return cartkey.Identity{Value: "device-1", Scope: cartkey.ScopeDevice}, nil
	})
	store := newMemCarts()
	store.set("device-1", 2)
	store.set("user-9", 5)
	feed := newFakeFeed()
	s := newSynchronizer(t, Options{Resolver: resolver, Reader: store, Feed: feed, DiscardStale: true})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	slow := make(chan error, 1)
	go func() { slow <- s.Refresh(context.Background()) }()
	<-entered

	require.NoError(t, s.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-slow)

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, "device-1", s.Identity().Value)
	history, live := feed.snapshot()
	assert.Equal(t, []string{"+device-1"}, history)
	assert.Equal(t, 1, live)
	assert.False(t, feed.notify("user-9"))
}

func TestLiveFeedFailureDoesNotBlockRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemCarts()
	store.set("abc", 2)
	feed := newFakeFeed()
	feed.err = errors.New("redis unavailable")
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: store, Feed: feed})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Equal(t, 2, s.Count())
}

func TestStopWaitsForInflightRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := events.NewBus()
	defer bus.Close()
	entered := make(chan struct{}, 1)
	var calls atomic.Int32
	reader := readerFunc(func(ctx context.Context, _ cartkey.Identity) ([]carts.Line, error) {
		if calls.Add(1) == 1 {
			return lines(1), nil
		}
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := newSynchronizer(t, Options{Resolver: staticResolver("abc"), Reader: reader, Signals: bus})

	require.NoError(t, s.Start(context.Background()))
	bus.Emit(events.Change{CartKey: "abc"})
	<-entered

	s.Stop()
	assert.Equal(t, 1, s.Count())
}
