// SPDX-License-Identifier: MIT

// Package assets resolves opaque content references into playable URLs.
package assets

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/typhoonhub/playcore/internal/cache"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/metrics"
)

// URLMinter is the storage collaborator contract: it turns an opaque storage
// key into a time-limited signed URL.
type URLMinter interface {
	MintSignedURL(ctx context.Context, key string) (string, error)
}

// Resolver turns content refs into fetchable URLs. Absolute URLs and
// root-relative paths pass through untouched; everything else is treated as
// a storage key and minted through the collaborator. Minting failures
// degrade to a root-relative guess instead of blocking playback.
type Resolver struct {
	minter  URLMinter
	cache   cache.Cache
	ttl     time.Duration
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Options configures a Resolver.
type Options struct {
	Cache          cache.Cache
	CacheTTL       time.Duration
	MintRatePerSec float64
	MintBurst      int
}

// NewResolver builds a resolver around the given storage collaborator.
func NewResolver(minter URLMinter, opts Options) *Resolver {
	c := opts.Cache
	if c == nil {
		c = cache.NewNoOpCache()
	}
	limit := rate.Inf
	if opts.MintRatePerSec > 0 {
		limit = rate.Limit(opts.MintRatePerSec)
	}
	burst := opts.MintBurst
	if burst < 1 {
		burst = 1
	}
	return &Resolver{
		minter:  minter,
		cache:   c,
		ttl:     opts.CacheTTL,
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.WithComponent("assets"),
	}
}

// passthrough reports whether ref is already fetchable as-is.
func passthrough(ref string) bool {
	return strings.HasPrefix(ref, "http") ||
		strings.HasPrefix(ref, "blob") ||
		strings.HasPrefix(ref, "/")
}

// Resolve maps ref to a playable URL. An empty ref resolves to the empty
// string, meaning "no asset". Resolve never returns an error: a failed mint
// falls back to "/"+ref so a broken resolution degrades to a dead link
// instead of blocking the viewer.
func (r *Resolver) Resolve(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	if passthrough(ref) {
		metrics.Resolution("passthrough")
		return ref
	}

	key := "asset:" + ref
	if url, ok := r.cache.Get(key); ok {
		metrics.Resolution("cached")
		return url
	}

	url, err := r.mint(ctx, ref)
	if err != nil {
		metrics.Resolution("fallback")
		r.logger.Warn().Err(err).Str(log.FieldRef, ref).Msg("signed url mint failed, falling back to relative path")
		return "/" + ref
	}

	r.cache.Set(key, url, r.ttl)
	metrics.Resolution("minted")
	return url
}

func (r *Resolver) mint(ctx context.Context, ref string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.minter.MintSignedURL(ctx, ref)
}

// Invalidate drops any cached URL for ref. Used when content is republished
// under the same key.
func (r *Resolver) Invalidate(ref string) {
	r.cache.Delete("asset:" + ref)
}
