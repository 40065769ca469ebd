package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// CacheSnapshot is the state of an in-memory key cache at collection time.
type CacheSnapshot struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// RegisterCacheObserver exports cache state read from snapshot on every collection.
// The returned registration can be unregistered on shutdown.
func RegisterCacheObserver(
	meterProvider metric.MeterProvider,
	namespace string,
	snapshot func() CacheSnapshot,
) (metric.Registration, error) {
	meter := meterProvider.Meter(namespace)

	size, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_key_cache_entries", namespace),
		metric.WithDescription("Group keys currently held in memory"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache size gauge: %w", err)
	}

	capacity, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_key_cache_capacity", namespace),
		metric.WithDescription("Maximum number of group keys held in memory"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache capacity gauge: %w", err)
	}

	hits, err := meter.Int64ObservableCounter(fmt.Sprintf("%s_key_cache_hits_total", namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hit counter: %w", err)
	}
	misses, err := meter.Int64ObservableCounter(fmt.Sprintf("%s_key_cache_misses_total", namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache miss counter: %w", err)
	}
	evictions, err := meter.Int64ObservableCounter(fmt.Sprintf("%s_key_cache_evictions_total", namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache eviction counter: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(size, int64(s.Len))
		o.ObserveInt64(capacity, int64(s.Capacity))
		o.ObserveInt64(hits, int64(s.Hits))
		o.ObserveInt64(misses, int64(s.Misses))
		o.ObserveInt64(evictions, int64(s.Evictions))
		return nil
	}, size, capacity, hits, misses, evictions)
}
