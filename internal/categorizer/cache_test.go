package categorizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	rules []domain.CategoryRule
	err   error
	calls int
}

func (f *fakeSource) FetchRules(ctx context.Context) ([]domain.CategoryRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.CategoryRule(nil), f.rules...), nil
}

func (f *fakeSource) set(rules []domain.CategoryRule, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rules
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(src RuleSource) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)}
	return NewCache(src, DefaultTTL, logging.Discard()).WithClock(clock.Now), clock
}

func TestCache_FirstCallFetches(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "shopee", Category: "Shopping"}}}
	cache, _ := newTestCache(src)

	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, 1, src.callCount())
}

func TestCache_ServesCachedWithinTTL(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "shopee", Category: "Shopping"}}}
	cache, clock := newTestCache(src)

	_, err := cache.Rules(context.Background())
	require.NoError(t, err)

	clock.Advance(100 * time.Second)
	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, 1, src.callCount(), "store must not be contacted within the TTL")
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "shopee", Category: "Shopping"}}}
	cache, clock := newTestCache(src)

	_, err := cache.Rules(context.Background())
	require.NoError(t, err)

	src.set([]domain.CategoryRule{
		{ReceiverPattern: "grab", Category: "Transport"},
		{ReceiverPattern: "shopee", Category: "Shopping"},
	}, nil)
	clock.Advance(301 * time.Second)

	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(), "exactly one refresh attempt after expiry")
	require.Len(t, rules, 2)
	assert.Equal(t, "grab", rules[0].ReceiverPattern)

	_, err = cache.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestCache_StaleOnFailure(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "shopee", Category: "Shopping"}}}
	cache, clock := newTestCache(src)

	_, err := cache.Rules(context.Background())
	require.NoError(t, err)

	src.set(nil, errors.New("connection refused"))
	clock.Advance(301 * time.Second)

	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Shopping", rules[0].Category)
}

func TestCache_FailureWithoutSnapshot(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	cache, _ := newTestCache(src)

	rules, err := cache.Rules(context.Background())
	assert.Nil(t, rules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRuleFetch))
}

func TestCache_RefreshForcesFetch(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "a", Category: "A"}}}
	cache, _ := newTestCache(src)

	_, err := cache.Rules(context.Background())
	require.NoError(t, err)

	src.set([]domain.CategoryRule{{ReceiverPattern: "b", Category: "B"}}, nil)
	rules, err := cache.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
	require.Len(t, rules, 1)
	assert.Equal(t, "b", rules[0].ReceiverPattern)

	rules, err = cache.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(), "forced refresh restarts the TTL")
	assert.Equal(t, "b", rules[0].ReceiverPattern)
}

func TestCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{{ReceiverPattern: "a", Category: "A"}}}
	cache, clock := newTestCache(src)

	_, err := cache.Rules(context.Background())
	require.NoError(t, err)

	src.set(nil, errors.New("connection refused"))
	_, err = cache.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRuleFetch))

	clock.Advance(DefaultTTL)
	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "a", rules[0].ReceiverPattern)
}

// blockingSource honours its context and otherwise waits for release.
type blockingSource struct {
	started     chan struct{}
	release     chan struct{}
	once        sync.Once
	hadDeadline atomic.Bool
}

func newBlockingSource() *blockingSource {
	return &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSource) FetchRules(ctx context.Context) ([]domain.CategoryRule, error) {
	_, ok := ctx.Deadline()
	b.hadDeadline.Store(ok)
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return []domain.CategoryRule{{ReceiverPattern: "shopee", Category: "Shopping"}}, nil
	}
}

func TestCache_FetchOutlivesCancelledCaller(t *testing.T) {
	src := newBlockingSource()
	close(src.release)
	cache, _ := newTestCache(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rules, err := cache.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.True(t, src.hadDeadline.Load(), "fetch must carry its own deadline")
}

func TestCache_SharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	src := newBlockingSource()
	cache, _ := newTestCache(src)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	type outcome struct {
		rules []domain.CategoryRule
		err   error
	}
	first := make(chan outcome, 1)
	go func() {
		rules, err := cache.Refresh(firstCtx)
		first <- outcome{rules, err}
	}()
	<-src.started

	second := make(chan outcome, 1)
	go func() {
		rules, err := cache.Rules(context.Background())
		second <- outcome{rules, err}
	}()

	cancelFirst()
	close(src.release)

	for _, ch := range []chan outcome{first, second} {
		got := <-ch
		require.NoError(t, got.err)
		assert.Len(t, got.rules, 1)
	}
}

func TestCache_FetchTimeout(t *testing.T) {
	src := newBlockingSource()
	cache, _ := newTestCache(src)
	cache.WithFetchTimeout(20 * time.Millisecond)

	_, err := cache.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRuleFetch))
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestCache_PreparesPatterns(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{
		{ReceiverPattern: "  ShopeePay ", Category: "Shopping"},
		{ReceiverPattern: "   ", Category: "Ignored"},
		{ReceiverPattern: "GRAB", Category: "Transport"},
	}}
	cache, _ := newTestCache(src)

	rules, err := cache.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "shopeepay", rules[0].ReceiverPattern)
	assert.Equal(t, "grab", rules[1].ReceiverPattern)
}

func TestCache_ConcurrentReaders(t *testing.T) {
	src := &fakeSource{rules: []domain.CategoryRule{
		{ReceiverPattern: "a", Category: "A"},
		{ReceiverPattern: "b", Category: "B"},
	}}
	cache, clock := newTestCache(src)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				clock.Advance(DefaultTTL)
			}
			rules, err := cache.Rules(context.Background())
			assert.NoError(t, err)
			assert.Len(t, rules, 2)
		}(i)
	}
	wg.Wait()
}
