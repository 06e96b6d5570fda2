// Package qr renders short links as QR images and stores the rendered bytes.
package qr

import (
	"context"
	"encoding/base64"
	"fmt"
	"image/color"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const DefaultSize = 300

// PNGEncoder renders content as a PNG with the highest error correction
// level, black on white.
type PNGEncoder struct {
	Size int
}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{Size: DefaultSize}
}

func (e *PNGEncoder) Encode(ctx context.Context, content string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := qrcode.New(content, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	code.ForegroundColor = color.Black
	code.BackgroundColor = color.White

	png, err := code.PNG(e.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	log.Debug().Int("bytes", len(png)).Str("content", content).Msg("QR code rendered")

	return png, nil
}

// InlineStore keeps images inside the link record and hands back a data URL
// as the image reference.
type InlineStore struct{}

func (InlineStore) Put(ctx context.Context, name string, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	log.Debug().Str("name", name).Int("bytes", len(png)).Msg("storing QR image inline")

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
