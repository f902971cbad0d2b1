package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

func TestDedupeRepositoryWithoutRedisAlwaysClaims(t *testing.T) {
	repo := NewDedupeRepository(nil)
	ok, err := repo.Claim(context.Background(), "gate-1", "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, repo.Release(context.Background(), "gate-1", "evt-1"))
	assert.Equal(t, "roomaccess:entry:gate-1:evt-1", dedupeKey("gate-1", "evt-1"))
}

func TestCacheRepositoryWithoutRedisMisses(t *testing.T) {
	repo := NewCacheRepository(nil, "roomaccess", nil)
	var dest []string
	assert.ErrorIs(t, repo.Get(context.Background(), "rooms", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "rooms", []string{"a"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "rooms:*"))
	assert.Equal(t, "roomaccess:rooms", repo.key("rooms"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("create room: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(ErrRoomInUse))
}
