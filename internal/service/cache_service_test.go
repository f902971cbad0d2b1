package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

type cacheRepoStub struct {
	values   map[string]string
	getErr   error
	setErr   error
	patterns []string
	lastTTL  time.Duration
}

func (c *cacheRepoStub) Get(_ context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	value, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*string)) = value
	return nil
}

func (c *cacheRepoStub) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.lastTTL = ttl
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value.(string)
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

func TestCacheServiceHitMiss(t *testing.T) {
	repo := &cacheRepoStub{values: map[string]string{}}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var out string
	assert.False(t, svc.Get(ctx, "rooms:list", &out))
	svc.Set(ctx, "rooms:list", "cached", 0)
	assert.Equal(t, time.Minute, repo.lastTTL)
	assert.True(t, svc.Get(ctx, "rooms:list", &out))
	assert.Equal(t, "cached", out)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))

	svc.Invalidate(ctx, "rooms:*")
	assert.Equal(t, []string{"rooms:*"}, repo.patterns)
}

func TestCacheServiceFailuresFallThrough(t *testing.T) {
	repo := &cacheRepoStub{values: map[string]string{}, getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
	assert.NotPanics(t, func() { svc.Set(context.Background(), "k", "v", time.Second) })
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &cacheRepoStub{values: map[string]string{"k": "v"}}
	svc := NewCacheService(repo, nil, 0, nil, false)

	var out string
	assert.False(t, svc.Enabled())
	assert.False(t, svc.Get(context.Background(), "k", &out))
	svc.Invalidate(context.Background(), "*")
	assert.Empty(t, repo.patterns)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}
