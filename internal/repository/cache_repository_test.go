package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "council:plan:")
	ctx := context.Background()

	assert.Equal(t, "council:plan:abc", repo.Key("abc"))

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "abc", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "abc", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "abc"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestDecodeCachedFlagsCorruptPayload(t *testing.T) {
	var dest map[string]string
	require.NoError(t, decodeCached("council:plan:abc", []byte(`{"a":"b"}`), &dest))
	assert.Equal(t, map[string]string{"a": "b"}, dest)

	err := decodeCached("council:plan:abc", []byte(`{"a":`), &dest)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCacheCorrupt.Code))
	assert.Contains(t, err.Error(), "council:plan:abc")
}

func TestCacheRepositoryTransportErrorIsNotCorruption(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewCacheRepository(client, "council:plan:")
	defer repo.Close()

	var dest map[string]string
	err := repo.Get(context.Background(), "abc", &dest)
	require.Error(t, err)
	assert.False(t, appErrors.HasCode(err, appErrors.ErrCacheCorrupt.Code))
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
}
