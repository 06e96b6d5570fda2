package service

import (
	"context"

	"github.com/abdusco/qrlink/internal"
	"github.com/rs/zerolog/log"
)

// Links serves the admin read and update operations.
type Links struct {
	registry Registry
	cache    DestinationCache
}

type LinksOption func(*Links)

func WithLinksCache(c DestinationCache) LinksOption {
	return func(s *Links) {
		s.cache = c
	}
}

func NewLinks(registry Registry, opts ...LinksOption) *Links {
	s := &Links{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Links) Get(ctx context.Context, principal internal.Principal, shortCode string) (*internal.Link, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	return s.registry.FindByCode(ctx, shortCode)
}

// UpdateDestination points shortCode at a new URL. The QR image is left as
// is; it encodes the short URL, not the destination.
func (s *Links) UpdateDestination(ctx context.Context, principal internal.Principal, shortCode, destinationURL string) (*internal.Link, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}

	link, err := s.registry.UpdateDestination(ctx, shortCode, destinationURL)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, shortCode, link.DestinationURL); err != nil {
			log.Error().Err(err).Str("short_code", shortCode).Msg("failed to refresh cached destination")
		}
	}

	log.Info().Str("short_code", shortCode).Str("updated_by", principal.Email).Msg("destination updated")

	return link, nil
}

func (s *Links) List(ctx context.Context, principal internal.Principal, page internal.Page) ([]*internal.Link, int64, error) {
	if err := authorize(principal); err != nil {
		return nil, 0, err
	}
	return s.registry.List(ctx, page)
}
