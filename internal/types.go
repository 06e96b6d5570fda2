package internal

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// Link is the persisted record behind a short code.
type Link struct {
	ID             string     `json:"id"`
	ShortCode      string     `json:"shortCode"`
	ShortURL       string     `json:"shortUrl"`
	DestinationURL string     `json:"destinationUrl"`
	QRImage        []byte     `json:"-"`
	QRImageURL     string     `json:"qrImageUrl"`
	Scans          int64      `json:"scans"`
	LastScannedAt  *time.Time `json:"lastScannedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewLink carries the fields chosen by the caller when a record is created.
// ID and timestamps are assigned by the registry.
type NewLink struct {
	ShortCode      string
	ShortURL       string
	DestinationURL string
	QRImage        []byte
	QRImageURL     string
}

// Principal is an authenticated identity. It is built once per request at the
// HTTP boundary and never modified afterwards.
type Principal struct {
	Email   string
	IsAdmin bool
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Page struct {
	Number int
	Size   int
}

// NewPage clamps a requested page to sane bounds: numbering starts at 1 and
// sizes fall back to DefaultPageSize and are capped at MaxPageSize. The page
// number is capped so Offset never overflows.
func NewPage(number, size int) Page {
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if number < 1 {
		number = 1
	}
	if maxNumber := math.MaxInt/size + 1; number > maxNumber {
		number = maxNumber
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Pages returns the number of pages needed to hold total items.
func (p Page) Pages(total int64) int64 {
	if p.Size <= 0 {
		return 0
	}
	size := int64(p.Size)
	return (total + size - 1) / size
}

// ShortURL joins the configured base URL and a short code into the public
// redirect URL.
func ShortURL(baseURL, shortCode string) string {
	return strings.TrimRight(baseURL, "/") + "/q/" + shortCode
}

// ValidateDestinationURL reports ErrInvalidURL unless raw is an absolute
// http(s) URL with a host.
func ValidateDestinationURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}
