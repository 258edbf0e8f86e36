package categorizer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched rule set is served before it is refetched.
	DefaultTTL = 5 * time.Minute

	// DefaultFetchTimeout bounds a single shared fetch from the rule source.
	DefaultFetchTimeout = 10 * time.Second
)

var (
	ruleRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankfeed_rule_refresh_total",
		Help: "Category rule refresh attempts, labeled by result",
	}, []string{"result"})

	ruleCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bankfeed_rules_cached",
		Help: "Number of category rules in the current cache snapshot",
	})
)

// RuleSource is the backing store of category rules.
type RuleSource interface {
	FetchRules(ctx context.Context) ([]domain.CategoryRule, error)
}

type snapshot struct {
	rules     []domain.CategoryRule
	fetchedAt time.Time
}

// Cache serves category rules from an immutable snapshot that is rebuilt and
// swapped whole once it is older than the TTL. Readers never see a partial set.
type Cache struct {
	source       RuleSource
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	log          logrus.FieldLogger

	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

func NewCache(source RuleSource, ttl time.Duration, log logrus.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		source:       source,
		ttl:          ttl,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		log:          log.WithField(logging.FieldComponent, "rule_cache"),
	}
}

// WithFetchTimeout bounds each fetch from the rule source.
func (c *Cache) WithFetchTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.fetchTimeout = d
	}
	return c
}

// WithClock replaces the time source; used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Rules returns the cached rule sequence, refreshing it first when it has expired.
// A failed refresh falls back to the last good snapshot when there is one.
func (c *Cache) Rules(ctx context.Context) ([]domain.CategoryRule, error) {
	snap := c.current.Load()
	if snap != nil && c.now().Sub(snap.fetchedAt) < c.ttl {
		return snap.rules, nil
	}

	rules, err := c.Refresh(ctx)
	if err != nil {
		if snap != nil {
			c.log.WithError(err).WithField(logging.FieldCount, len(snap.rules)).
				Warn("Rule refresh failed, serving stale rules")
			return snap.rules, nil
		}
		return nil, err
	}
	return rules, nil
}

// Refresh fetches the rules unconditionally and swaps them in. A failed fetch
// leaves the current snapshot in place.
//
// Concurrent callers share one fetch, which runs detached from any single
// caller's cancellation and is bounded by the fetch timeout instead.
func (c *Cache) Refresh(ctx context.Context) ([]domain.CategoryRule, error) {
	v, err, _ := c.group.Do("rules", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		fetched, err := c.source.FetchRules(fetchCtx)
		if err != nil {
			ruleRefreshTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", domain.ErrRuleFetch, err)
		}

		next := &snapshot{rules: prepare(fetched), fetchedAt: c.now()}
		c.current.Store(next)

		ruleRefreshTotal.WithLabelValues("ok").Inc()
		ruleCount.Set(float64(len(next.rules)))
		c.log.WithField(logging.FieldCount, len(next.rules)).Debug("Category rules refreshed")
		return next.rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CategoryRule), nil
}

// prepare copies rules in stored order with patterns lowercased and trimmed.
// Rules with a blank pattern can never match and are dropped.
func prepare(rules []domain.CategoryRule) []domain.CategoryRule {
	out := make([]domain.CategoryRule, 0, len(rules))
	for _, r := range rules {
		r.ReceiverPattern = strings.ToLower(strings.TrimSpace(r.ReceiverPattern))
		if r.ReceiverPattern == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
