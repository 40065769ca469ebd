package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCacheObserver(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	snapshot := CacheSnapshot{Len: 12, Capacity: 50, Hits: 30, Misses: 7, Evictions: 2}
	reg, err := RegisterCacheObserver(provider.MeterProvider(), "groupkeys", func() CacheSnapshot {
		return snapshot
	})
	require.NoError(t, err)

	output := scrape(t, provider)
	assert.Regexp(t, `groupkeys_key_cache_entries\{[^}]*\} 12`, output)
	assert.Regexp(t, `groupkeys_key_cache_capacity\{[^}]*\} 50`, output)
	assert.Regexp(t, `groupkeys_key_cache_hits_total\{[^}]*\} 30`, output)
	assert.Regexp(t, `groupkeys_key_cache_misses_total\{[^}]*\} 7`, output)
	assert.Regexp(t, `groupkeys_key_cache_evictions_total\{[^}]*\} 2`, output)

	snapshot.Len = 0
	assert.Regexp(t, `groupkeys_key_cache_entries\{[^}]*\} 0`, scrape(t, provider))

	assert.NoError(t, reg.Unregister())
}
