package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdusco/qrlink/internal"
	"github.com/abdusco/qrlink/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

const linksTable = "links"

const pgUniqueViolation = "23505"

// columns returned by List; the image payload is left out of listings.
var summaryColumns = []any{
	"id", "short_code", "short_url", "destination_url", "qr_image_url",
	"scans", "last_scanned_at", "created_at", "updated_at",
}

type linkRow struct {
	ID             string `db:"id"`
	ShortCode      string `db:"short_code"`
	ShortURL       string `db:"short_url"`
	DestinationURL string `db:"destination_url"`
	QRImage        []byte `db:"qr_image"`
	QRImageURL     string `db:"qr_image_url"`
	Scans          int64  `db:"scans"`
	LastScannedAt  *Date  `db:"last_scanned_at" goqu:"skipinsert"`
	CreatedAt      Date   `db:"created_at"`
	UpdatedAt      Date   `db:"updated_at"`
}

// LinksRepo is the only writer of link records. Short code uniqueness is
// enforced by the unique index on links.short_code; a violation surfaces as
// internal.ErrDuplicateCode.
type LinksRepo struct {
	handle *db.Handle
	now    func() time.Time
}

func NewLinksRepo(handle *db.Handle) *LinksRepo {
	return &LinksRepo{handle: handle, now: time.Now}
}

func (r *LinksRepo) database(ctx context.Context) (*goqu.Database, error) {
	sqlDB, err := r.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	return goqu.New(r.handle.Dialect(), sqlDB), nil
}

func (r *LinksRepo) Create(ctx context.Context, in internal.NewLink) (*internal.Link, error) {
	if err := internal.ValidateDestinationURL(in.DestinationURL); err != nil {
		return nil, err
	}

	executor, err := r.database(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("short_code", in.ShortCode).Str("url", in.DestinationURL).Msg("creating link")

	now := NewDate(r.now())
	row := linkRow{
		ID:             uuid.NewString(),
		ShortCode:      in.ShortCode,
		ShortURL:       in.ShortURL,
		DestinationURL: in.DestinationURL,
		QRImage:        in.QRImage,
		QRImageURL:     in.QRImageURL,
		Scans:          0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = executor.Insert(linksTable).Prepared(true).Rows(row).Executor().ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			log.Warn().Str("short_code", in.ShortCode).Msg("short code already taken")
			return nil, fmt.Errorf("%w: %s", internal.ErrDuplicateCode, in.ShortCode)
		}
		log.Error().Err(err).Str("short_code", in.ShortCode).Msg("failed to create link")
		return nil, fmt.Errorf("failed to insert link: %w", err)
	}

	link := row.toDomain()
	log.Info().Str("id", link.ID).Str("short_code", link.ShortCode).Msg("link created successfully")

	return link, nil
}

func (r *LinksRepo) FindByCode(ctx context.Context, shortCode string) (*internal.Link, error) {
	executor, err := r.database(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("short_code", shortCode).Msg("fetching link by short code")

	return findByCode(ctx, executor, shortCode)
}

func (r *LinksRepo) UpdateDestination(ctx context.Context, shortCode, destinationURL string) (*internal.Link, error) {
	if err := internal.ValidateDestinationURL(destinationURL); err != nil {
		return nil, err
	}

	executor, err := r.database(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("short_code", shortCode).Str("url", destinationURL).Msg("updating link destination")

	var link *internal.Link
	err = r.withTx(ctx, executor, func(tx *goqu.TxDatabase) error {
		query := tx.Update(linksTable).Prepared(true).
			Set(goqu.Record{
				"destination_url": destinationURL,
				"updated_at":      NewDate(r.now()),
			}).
			Where(goqu.Ex{"short_code": shortCode})

		if err := expectOneRow(query.Executor().ExecContext(ctx)); err != nil {
			return err
		}

		link, err = findByCode(ctx, tx, shortCode)
		return err
	})
	if err != nil {
		if !errors.Is(err, internal.ErrLinkNotFound) {
			log.Error().Err(err).Str("short_code", shortCode).Msg("failed to update link")
		}
		return nil, err
	}

	log.Info().Str("id", link.ID).Str("short_code", shortCode).Msg("link destination updated")

	return link, nil
}

// RecordScan increments the scan counter in a single UPDATE so concurrent
// scans of the same code never overwrite each other.
func (r *LinksRepo) RecordScan(ctx context.Context, shortCode string) (*internal.Link, error) {
	executor, err := r.database(ctx)
	if err != nil {
		return nil, err
	}

	var link *internal.Link
	err = r.withTx(ctx, executor, func(tx *goqu.TxDatabase) error {
		query := tx.Update(linksTable).Prepared(true).
			Set(goqu.Record{
				"scans":           goqu.L("scans + 1"),
				"last_scanned_at": NewDate(r.now()),
			}).
			Where(goqu.Ex{"short_code": shortCode})

		if err := expectOneRow(query.Executor().ExecContext(ctx)); err != nil {
			return err
		}

		link, err = findByCode(ctx, tx, shortCode)
		return err
	})
	if err != nil {
		if !errors.Is(err, internal.ErrLinkNotFound) {
			log.Error().Err(err).Str("short_code", shortCode).Msg("failed to record scan")
		}
		return nil, err
	}

	log.Debug().Str("short_code", shortCode).Int64("scans", link.Scans).Msg("scan recorded")

	return link, nil
}

// List returns one page of links, newest first, and the total number of links.
func (r *LinksRepo) List(ctx context.Context, page internal.Page) ([]*internal.Link, int64, error) {
	executor, err := r.database(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := executor.From(linksTable).Prepared(true).
		Select(summaryColumns...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset()))

	var rows []linkRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		log.Error().Err(err).Msg("failed to list links")
		return nil, 0, fmt.Errorf("failed to list links: %w", err)
	}

	total, err := executor.From(linksTable).CountContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to count links")
		return nil, 0, fmt.Errorf("failed to count links: %w", err)
	}

	links := make([]*internal.Link, len(rows))
	for i := range rows {
		links[i] = rows[i].toDomain()
	}

	return links, total, nil
}

func (r *LinksRepo) withTx(ctx context.Context, executor *goqu.Database, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := executor.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx.Wrap(func() error {
		return fn(tx)
	})
}

type queryer interface {
	From(from ...any) *goqu.SelectDataset
}

func findByCode(ctx context.Context, q queryer, shortCode string) (*internal.Link, error) {
	query := q.From(linksTable).Prepared(true).Where(goqu.Ex{"short_code": shortCode})

	var row linkRow
	found, err := query.ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Str("short_code", shortCode).Msg("failed to fetch link")
		return nil, fmt.Errorf("failed to fetch link: %w", err)
	}

	if !found {
		log.Debug().Str("short_code", shortCode).Msg("link not found")
		return nil, internal.ErrLinkNotFound
	}

	return row.toDomain(), nil
}

func expectOneRow(res interface{ RowsAffected() (int64, error) }, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get number of affected rows: %w", err)
	}
	if n == 0 {
		return internal.ErrLinkNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		// primary result code only, when extended codes are off
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}

func (r *linkRow) toDomain() *internal.Link {
	return &internal.Link{
		ID:             r.ID,
		ShortCode:      r.ShortCode,
		ShortURL:       r.ShortURL,
		DestinationURL: r.DestinationURL,
		QRImage:        r.QRImage,
		QRImageURL:     r.QRImageURL,
		Scans:          r.Scans,
		LastScannedAt:  r.LastScannedAt.TimePtr(),
		CreatedAt:      r.CreatedAt.Time(),
		UpdatedAt:      r.UpdatedAt.Time(),
	}
}
