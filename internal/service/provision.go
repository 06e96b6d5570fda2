package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdusco/qrlink/internal"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAttempts bounds how many fresh codes are tried before giving up.
const DefaultMaxAttempts = 5

type Provisioner struct {
	registry    Registry
	codes       CodeGenerator
	encoder     Encoder
	images      ImageStore
	baseURL     string
	maxAttempts int
	now         func() time.Time
}

func NewProvisioner(registry Registry, codes CodeGenerator, encoder Encoder, images ImageStore, baseURL string) *Provisioner {
	return &Provisioner{
		registry:    registry,
		codes:       codes,
		encoder:     encoder,
		images:      images,
		baseURL:     baseURL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

// Provision allocates a unique short code for destinationURL, renders its QR
// image and stores the record. Each attempt draws a new code; a code taken
// by another record is only detected by the registry's uniqueness constraint.
func (p *Provisioner) Provision(ctx context.Context, principal internal.Principal, destinationURL string) (*internal.Link, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	if err := internal.ValidateDestinationURL(destinationURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		code, err := p.codes.Generate()
		if err != nil {
			log.Error().Err(err).Msg("short code generator failed")
			return nil, err
		}

		link, err := p.create(ctx, code, destinationURL)
		if errors.Is(err, internal.ErrDuplicateCode) {
			log.Warn().Str("short_code", code).Int("attempt", attempt).Msg("short code collision, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("short_code", link.ShortCode).
			Str("created_by", principal.Email).
			Int("attempts", attempt).
			Msg("link provisioned")

		return link, nil
	}

	log.Error().Int("attempts", p.maxAttempts).Msg("no free short code found")
	return nil, fmt.Errorf("%w after %d attempts", internal.ErrCodeSpaceExhausted, p.maxAttempts)
}

func (p *Provisioner) create(ctx context.Context, code, destinationURL string) (*internal.Link, error) {
	shortURL := internal.ShortURL(p.baseURL, code)

	png, err := p.encoder.Encode(ctx, shortURL)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	name := fmt.Sprintf("%s-%d.png", code, p.now().UnixMilli())
	imageURL, err := p.images.Put(ctx, name, png)
	if err != nil {
		return nil, fmt.Errorf("failed to store QR image: %w", err)
	}

	return p.registry.Create(ctx, internal.NewLink{
		ShortCode:      code,
		ShortURL:       shortURL,
		DestinationURL: destinationURL,
		QRImage:        png,
		QRImageURL:     imageURL,
	})
}
