// Package service holds the link use cases: provisioning new QR links,
// resolving public short codes and the admin read/update operations.
package service

import (
	"context"

	"github.com/abdusco/qrlink/internal"
)

type Registry interface {
	Create(ctx context.Context, in internal.NewLink) (*internal.Link, error)
	FindByCode(ctx context.Context, shortCode string) (*internal.Link, error)
	UpdateDestination(ctx context.Context, shortCode, destinationURL string) (*internal.Link, error)
	RecordScan(ctx context.Context, shortCode string) (*internal.Link, error)
	List(ctx context.Context, page internal.Page) ([]*internal.Link, int64, error)
}

type CodeGenerator interface {
	Generate() (string, error)
}

// Encoder turns text into image bytes.
type Encoder interface {
	Encode(ctx context.Context, content string) ([]byte, error)
}

// ImageStore persists image bytes and returns a reference to them.
type ImageStore interface {
	Put(ctx context.Context, name string, png []byte) (string, error)
}

type DestinationCache interface {
	Get(ctx context.Context, shortCode string) (string, bool, error)
	// Set overwrites the entry; Fill writes only when the entry is absent.
	Set(ctx context.Context, shortCode, destinationURL string) error
	Fill(ctx context.Context, shortCode, destinationURL string) error
}

func authorize(p internal.Principal) error {
	if p.Email == "" {
		return internal.ErrUnauthenticated
	}
	if !p.IsAdmin {
		return internal.ErrUnauthorized
	}
	return nil
}
