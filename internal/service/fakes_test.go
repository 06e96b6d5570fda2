package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdusco/qrlink/internal"
)

var (
	admin    = internal.Principal{Email: "admin@example.com", IsAdmin: true}
	outsider = internal.Principal{Email: "someone@example.com", IsAdmin: false}
	nobody   = internal.Principal{}
)

type memRegistry struct {
	mu    sync.Mutex
	links map[string]*internal.Link

	taken   map[string]bool
	scanErr error
	findErr error

	createCalls []string
	findCalls   int
	scanCalls   int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		links: make(map[string]*internal.Link),
		taken: make(map[string]bool),
	}
}

func (m *memRegistry) Create(_ context.Context, in internal.NewLink) (*internal.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls = append(m.createCalls, in.ShortCode)
	if _, ok := m.links[in.ShortCode]; ok || m.taken[in.ShortCode] {
		return nil, internal.ErrDuplicateCode
	}

	now := time.Now()
	link := &internal.Link{
		ID:             fmt.Sprintf("id-%d", len(m.links)+1),
		ShortCode:      in.ShortCode,
		ShortURL:       in.ShortURL,
		DestinationURL: in.DestinationURL,
		QRImage:        in.QRImage,
		QRImageURL:     in.QRImageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.links[in.ShortCode] = link

	cp := *link
	return &cp, nil
}

func (m *memRegistry) FindByCode(_ context.Context, shortCode string) (*internal.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	link, ok := m.links[shortCode]
	if !ok {
		return nil, internal.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *memRegistry) UpdateDestination(_ context.Context, shortCode, destinationURL string) (*internal.Link, error) {
	if err := internal.ValidateDestinationURL(destinationURL); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[shortCode]
	if !ok {
		return nil, internal.ErrLinkNotFound
	}
	link.DestinationURL = destinationURL
	link.UpdatedAt = time.Now()
	cp := *link
	return &cp, nil
}

func (m *memRegistry) RecordScan(_ context.Context, shortCode string) (*internal.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scanCalls++
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	link, ok := m.links[shortCode]
	if !ok {
		return nil, internal.ErrLinkNotFound
	}
	now := time.Now()
	link.Scans++
	link.LastScannedAt = &now
	cp := *link
	return &cp, nil
}

func (m *memRegistry) List(_ context.Context, page internal.Page) ([]*internal.Link, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*internal.Link, 0, len(m.links))
	for _, l := range m.links {
		all = append(all, l)
	}
	total := int64(len(all))

	start := min(page.Offset(), len(all))
	end := min(start+page.Size, len(all))
	return all[start:end], total, nil
}

// seqCodes hands out codes from a fixed list.
type seqCodes struct {
	mu    sync.Mutex
	codes []string
	err   error
	calls int
}

func (s *seqCodes) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.codes) == 0 {
		return "", errors.New("out of codes")
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

type fakeEncoder struct {
	err      error
	contents []string
}

func (f *fakeEncoder) Encode(_ context.Context, content string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.contents = append(f.contents, content)
	return []byte("png:" + content), nil
}

type fakeImages struct {
	err   error
	names []string
}

func (f *fakeImages) Put(_ context.Context, name string, png []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.names = append(f.names, name)
	return "mem://" + name, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
	err     error

	gets, sets, fills int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, shortCode string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	if c.err != nil {
		return "", false, c.err
	}
	dest, ok := c.entries[shortCode]
	return dest, ok, nil
}

func (c *memCache) Set(_ context.Context, shortCode, destinationURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	if c.err != nil {
		return c.err
	}
	c.entries[shortCode] = destinationURL
	return nil
}

func (c *memCache) Fill(_ context.Context, shortCode, destinationURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fills++
	if c.err != nil {
		return c.err
	}
	if _, ok := c.entries[shortCode]; !ok {
		c.entries[shortCode] = destinationURL
	}
	return nil
}
