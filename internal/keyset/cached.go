package keyset

import (
	"context"
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog"
)

// Refresher drops the cached key set for an endpoint so the next resolve
// fetches it again. It reports whether the entry was dropped: nothing is done
// when no key set is cached or when the endpoint was refreshed within the
// cooldown.
type Refresher func(ctx context.Context) bool

// Cached supplies a wrapper that holds the result of a resolver for the given
// TTL, keyed by endpoint. Failed lookups are not cached, so the next request
// retries the fetch.
//
// Each wrapped resolver comes with a Refresher for key rotation. Refreshes of
// an endpoint are limited to one per cooldown; a cooldown of zero or less
// leaves them unlimited.
//
// The cache is non-locking: concurrent misses for the same endpoint may each
// fetch the key set, and the last one stored wins.
func Cached(ttl, cooldown time.Duration) (func(endpoint string, r Resolver) (Resolver, Refresher), error) {
	cache, err := otter.
		MustBuilder[string, any](100).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	var refreshed *otter.Cache[string, time.Time]
	if cooldown > 0 {
		limiter, err := otter.
			MustBuilder[string, time.Time](100).
			WithTTL(cooldown).
			Build()
		if err != nil {
			return nil, err
		}
		refreshed = &limiter
	}

	return func(endpoint string, r Resolver) (Resolver, Refresher) {
		resolve := func(ctx context.Context) (any, error) {
			if keys, ok := cache.Get(endpoint); ok {
				zerolog.Ctx(ctx).Debug().
					Str("endpoint", endpoint).
					Msg("hit: cached key set")

				return keys, nil
			}

			keys, err := r(ctx)
			if err != nil {
				return nil, err
			}

			zerolog.Ctx(ctx).Info().
				Str("endpoint", endpoint).
				Dur("ttl", ttl).
				Msg("miss: key set fetched")

			cache.Set(endpoint, keys)

			return keys, nil
		}

		refresh := func(ctx context.Context) bool {
			if !cache.Has(endpoint) {
				return false
			}

			if refreshed != nil && !refreshed.SetIfAbsent(endpoint, time.Now()) {
				zerolog.Ctx(ctx).Debug().
					Str("endpoint", endpoint).
					Dur("cooldown", cooldown).
					Msg("refresh: skipped, key set refreshed recently")

				return false
			}

			cache.Delete(endpoint)

			zerolog.Ctx(ctx).Info().
				Str("endpoint", endpoint).
				Msg("refresh: cached key set dropped")

			return true
		}

		return resolve, refresh
	}, nil
}
