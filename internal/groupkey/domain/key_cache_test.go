package domain

import (
	"bytes"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

func testKey(t *testing.T, b byte) *cryptoDomain.GroupKey {
	t.Helper()
	key, err := cryptoDomain.NewGroupKey(bytes.Repeat([]byte{b}, cryptoDomain.GroupKeySize))
	require.NoError(t, err)
	return key
}

func TestNewKeyCache(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		cache, err := NewKeyCache(DefaultCacheCapacity)
		require.NoError(t, err)
		assert.Equal(t, DefaultCacheCapacity, cache.Stats().Capacity)
		assert.Zero(t, cache.Len())
	})

	t.Run("Error_NonPositiveCapacity", func(t *testing.T) {
		for _, capacity := range []int{0, -1} {
			_, err := NewKeyCache(capacity)
			assert.ErrorIs(t, err, ErrInvalidCacheCapacity)
		}
	})
}

func TestKeyCache_GetPut(t *testing.T) {
	cache, err := NewKeyCache(DefaultCacheCapacity)
	require.NoError(t, err)
	conversationID := uuid.New()

	_, ok := cache.Get(conversationID, 1)
	assert.False(t, ok)

	require.NoError(t, cache.Put(conversationID, 1, testKey(t, 0x01)))
	require.NoError(t, cache.Put(conversationID, 2, testKey(t, 0x02)))

	v1, ok := cache.Get(conversationID, 1)
	require.True(t, ok)
	assert.True(t, v1.Equal(testKey(t, 0x01)))

	v2, ok := cache.Get(conversationID, 2)
	require.True(t, ok)
	assert.True(t, v2.Equal(testKey(t, 0x02)))

	_, ok = cache.Get(uuid.New(), 1)
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestKeyCache_CopiesAreIndependent(t *testing.T) {
	cache, err := NewKeyCache(4)
	require.NoError(t, err)
	conversationID := uuid.New()

	original := testKey(t, 0x09)
	require.NoError(t, cache.Put(conversationID, 1, original))
	original.Destroy()

	got, ok := cache.Get(conversationID, 1)
	require.True(t, ok)
	got.Destroy()

	again, ok := cache.Get(conversationID, 1)
	require.True(t, ok)
	assert.True(t, again.Equal(testKey(t, 0x09)))
}

func TestKeyCache_FIFOEviction(t *testing.T) {
	cache, err := NewKeyCache(DefaultCacheCapacity)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 55)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, cache.Put(ids[i], 1, testKey(t, byte(i))))
	}

	assert.Equal(t, DefaultCacheCapacity, cache.Len())
	for i := 0; i < 5; i++ {
		_, ok := cache.Get(ids[i], 1)
		assert.False(t, ok, "entry %d should be evicted", i)
	}
	for i := 5; i < 55; i++ {
		key, ok := cache.Get(ids[i], 1)
		require.True(t, ok, "entry %d should be cached", i)
		assert.True(t, key.Equal(testKey(t, byte(i))))
	}
	assert.Equal(t, uint64(5), cache.Stats().Evictions)
}

func TestKeyCache_ReadsDoNotRefreshPosition(t *testing.T) {
	cache, err := NewKeyCache(2)
	require.NoError(t, err)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, cache.Put(a, 1, testKey(t, 0x0A)))
	require.NoError(t, cache.Put(b, 1, testKey(t, 0x0B)))
	_, ok := cache.Get(a, 1)
	require.True(t, ok)

	require.NoError(t, cache.Put(c, 1, testKey(t, 0x0C)))

	_, ok = cache.Get(a, 1)
	assert.False(t, ok)
	_, ok = cache.Get(b, 1)
	assert.True(t, ok)
}

func TestKeyCache_ReplaceKeepsPosition(t *testing.T) {
	cache, err := NewKeyCache(2)
	require.NoError(t, err)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, cache.Put(a, 1, testKey(t, 0x0A)))
	require.NoError(t, cache.Put(b, 1, testKey(t, 0x0B)))
	require.NoError(t, cache.Put(a, 1, testKey(t, 0xAA)))
	assert.Equal(t, 2, cache.Len())

	got, ok := cache.Get(a, 1)
	require.True(t, ok)
	assert.True(t, got.Equal(testKey(t, 0xAA)))

	require.NoError(t, cache.Put(c, 1, testKey(t, 0x0C)))

	_, ok = cache.Get(a, 1)
	assert.False(t, ok, "replaced entry keeps its original insertion slot")
	_, ok = cache.Get(b, 1)
	assert.True(t, ok)
}

func TestKeyCache_Clear(t *testing.T) {
	cache, err := NewKeyCache(DefaultCacheCapacity)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, cache.Put(ids[i], uint(i+1), testKey(t, byte(i))))
	}

	cache.Clear()

	assert.Zero(t, cache.Len())
	for i := range ids {
		_, ok := cache.Get(ids[i], uint(i+1))
		assert.False(t, ok)
	}

	require.NoError(t, cache.Put(ids[0], 1, testKey(t, 0x01)))
	assert.Equal(t, 1, cache.Len())
}

func TestKeyCache_PutRejectsEmptyKey(t *testing.T) {
	cache, err := NewKeyCache(2)
	require.NoError(t, err)

	destroyed := testKey(t, 0x01)
	destroyed.Destroy()

	assert.ErrorIs(t, cache.Put(uuid.New(), 1, destroyed), cryptoDomain.ErrInvalidKeySize)
	assert.ErrorIs(t, cache.Put(uuid.New(), 1, nil), cryptoDomain.ErrInvalidKeySize)
	assert.Zero(t, cache.Len())
}

func TestKeyCache_Concurrent(t *testing.T) {
	cache, err := NewKeyCache(16)
	require.NoError(t, err)
	conversationID := uuid.New()
	key := testKey(t, 0x01)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				version := uint(w*100 + i)
				assert.NoError(t, cache.Put(conversationID, version, key))
				cache.Get(conversationID, version)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 16)
}
