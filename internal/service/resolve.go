package service

import (
	"context"
	"errors"

	"github.com/abdusco/qrlink/internal"
	"github.com/abdusco/qrlink/internal/shortcode"
	"github.com/rs/zerolog/log"
)

type Resolver struct {
	registry Registry
	cache    DestinationCache
}

type ResolverOption func(*Resolver)

func WithResolverCache(c DestinationCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
	}
}

func NewResolver(registry Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the destination for shortCode and counts the visit.
// Counting is best effort: a failed increment is logged and the destination
// is still returned.
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (string, error) {
	if !shortcode.IsValid(shortCode) {
		return "", internal.ErrLinkNotFound
	}

	destination, err := r.lookup(ctx, shortCode)
	if err != nil {
		return "", err
	}

	if _, err := r.registry.RecordScan(ctx, shortCode); err != nil {
		log.Error().Err(err).Str("short_code", shortCode).Msg("failed to record scan")
	}

	return destination, nil
}

func (r *Resolver) lookup(ctx context.Context, shortCode string) (string, error) {
	if r.cache != nil {
		destination, found, err := r.cache.Get(ctx, shortCode)
		if err != nil {
			log.Warn().Err(err).Str("short_code", shortCode).Msg("cache read failed")
		} else if found {
			return destination, nil
		}
	}

	link, err := r.registry.FindByCode(ctx, shortCode)
	if err != nil {
		if !errors.Is(err, internal.ErrLinkNotFound) {
			log.Error().Err(err).Str("short_code", shortCode).Msg("failed to look up link")
		}
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Fill(ctx, shortCode, link.DestinationURL); err != nil {
			log.Warn().Err(err).Str("short_code", shortCode).Msg("cache write failed")
		}
	}

	return link.DestinationURL, nil
}
