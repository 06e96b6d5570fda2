package repo

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdusco/qrlink/internal"
	"github.com/abdusco/qrlink/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0x00, 0x0d, 0xff}

func newTestRepo(t *testing.T) *LinksRepo {
	t.Helper()

	handle := db.New(filepath.Join(t.TempDir(), "links.db"))
	t.Cleanup(func() { handle.Close() })

	return NewLinksRepo(handle)
}

func newLink(code, destination string) internal.NewLink {
	return internal.NewLink{
		ShortCode:      code,
		ShortURL:       internal.ShortURL("https://qr.test", code),
		DestinationURL: destination,
		QRImage:        pngBytes,
		QRImageURL:     "data:image/png;base64,AAAA",
	}
}

func TestLinksRepo_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	created, err := r.Create(ctx, newLink("ABC123", "https://example.com/a"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ABC123", created.ShortCode)
	assert.Zero(t, created.Scans)
	assert.Nil(t, created.LastScannedAt)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	found, err := r.FindByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "https://example.com/a", found.DestinationURL)
	assert.Equal(t, "https://qr.test/q/ABC123", found.ShortURL)
	assert.Equal(t, pngBytes, found.QRImage)
	assert.Equal(t, "data:image/png;base64,AAAA", found.QRImageURL)
	assert.Zero(t, found.Scans)
	assert.Nil(t, found.LastScannedAt)
	assert.True(t, created.CreatedAt.Equal(found.CreatedAt))
}

func TestLinksRepo_FindByCode_IsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Create(ctx, newLink("ABC123", "https://example.com"))
	require.NoError(t, err)

	_, err = r.FindByCode(ctx, "abc123")
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)
}

func TestLinksRepo_Create_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Create(ctx, newLink("DUP001", "https://example.com/first"))
	require.NoError(t, err)

	_, err = r.Create(ctx, newLink("DUP001", "https://example.com/second"))
	require.ErrorIs(t, err, internal.ErrDuplicateCode)

	found, err := r.FindByCode(ctx, "DUP001")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/first", found.DestinationURL)
}

func TestLinksRepo_Create_InvalidURL(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Create(ctx, newLink("BAD001", "not-a-url"))
	require.ErrorIs(t, err, internal.ErrInvalidURL)

	_, total, err := r.List(ctx, internal.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLinksRepo_Create_ConcurrentSameCode(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	const n = 10
	results := make([]error, n)

	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			_, results[i] = r.Create(ctx, newLink("RACE01", fmt.Sprintf("https://example.com/%d", i)))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, internal.ErrDuplicateCode):
			duplicates++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, duplicates)
}

func TestLinksRepo_RecordScan(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	created, err := r.Create(ctx, newLink("SCAN01", "https://example.com"))
	require.NoError(t, err)

	fixed := created.CreatedAt.Add(time.Hour)
	r.now = func() time.Time { return fixed }

	scanned, err := r.RecordScan(ctx, "SCAN01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), scanned.Scans)
	require.NotNil(t, scanned.LastScannedAt)
	assert.True(t, fixed.Equal(*scanned.LastScannedAt))
	assert.True(t, created.UpdatedAt.Equal(scanned.UpdatedAt), "scans do not touch updated_at")

	scanned, err = r.RecordScan(ctx, "SCAN01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), scanned.Scans)
}

func TestLinksRepo_RecordScan_NotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.RecordScan(ctx, "NOPE00")
	require.ErrorIs(t, err, internal.ErrLinkNotFound)

	_, total, err := r.List(ctx, internal.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLinksRepo_RecordScan_Concurrent(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Create(ctx, newLink("HOT001", "https://example.com"))
	require.NoError(t, err)

	const n = 50
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := r.RecordScan(ctx, "HOT001")
			return err
		})
	}
	require.NoError(t, g.Wait())

	found, err := r.FindByCode(ctx, "HOT001")
	require.NoError(t, err)
	assert.Equal(t, int64(n), found.Scans)
}

func TestLinksRepo_UpdateDestination(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	created, err := r.Create(ctx, newLink("UPD001", "https://example.com/a"))
	require.NoError(t, err)
	_, err = r.RecordScan(ctx, "UPD001")
	require.NoError(t, err)

	later := created.UpdatedAt.Add(time.Minute)
	r.now = func() time.Time { return later }

	updated, err := r.UpdateDestination(ctx, "UPD001", "https://example.com/b")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", updated.DestinationURL)
	assert.Equal(t, int64(1), updated.Scans)
	assert.Equal(t, pngBytes, updated.QRImage)
	assert.Equal(t, created.QRImageURL, updated.QRImageURL)
	assert.Equal(t, created.ShortURL, updated.ShortURL)
	assert.True(t, later.Equal(updated.UpdatedAt))
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	found, err := r.FindByCode(ctx, "UPD001")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", found.DestinationURL)
	assert.Equal(t, pngBytes, found.QRImage)
}

func TestLinksRepo_UpdateDestination_Errors(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	created, err := r.Create(ctx, newLink("UPD002", "https://example.com/a"))
	require.NoError(t, err)

	t.Run("malformed url leaves record unchanged", func(t *testing.T) {
		_, err := r.UpdateDestination(ctx, "UPD002", "not-a-url")
		require.ErrorIs(t, err, internal.ErrInvalidURL)

		found, err := r.FindByCode(ctx, "UPD002")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", found.DestinationURL)
		assert.True(t, created.UpdatedAt.Equal(found.UpdatedAt))
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := r.UpdateDestination(ctx, "NOPE00", "https://example.com/b")
		require.ErrorIs(t, err, internal.ErrLinkNotFound)
	})
}

func TestLinksRepo_List(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		r.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := r.Create(ctx, newLink(fmt.Sprintf("LIST0%d", i), fmt.Sprintf("https://example.com/%d", i)))
		require.NoError(t, err)
	}

	links, total, err := r.List(ctx, internal.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, links, 2)
	assert.Equal(t, "LIST04", links[0].ShortCode)
	assert.Equal(t, "LIST03", links[1].ShortCode)
	assert.Empty(t, links[0].QRImage, "listings omit the image payload")
	assert.NotEmpty(t, links[0].QRImageURL)

	links, _, err = r.List(ctx, internal.Page{Number: 3, Size: 2})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "LIST00", links[0].ShortCode)

	links, total, err = r.List(ctx, internal.Page{Number: 4, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Equal(t, int64(5), total)

	links, total, err = r.List(ctx, internal.NewPage(math.MaxInt, 2))
	require.NoError(t, err)
	assert.Empty(t, links, "a page far past the end is empty, not the first page")
	assert.Equal(t, int64(5), total)
}

func TestLinksRepo_CanceledContext(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.Create(context.Background(), newLink("CTX001", "https://example.com"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.RecordScan(ctx, "CTX001")
	require.Error(t, err)

	found, err := r.FindByCode(context.Background(), "CTX001")
	require.NoError(t, err)
	assert.Zero(t, found.Scans)
}
