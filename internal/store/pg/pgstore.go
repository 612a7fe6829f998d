package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/peace-bassey/BitTrust/internal/ledger"
	"github.com/peace-bassey/BitTrust/internal/lending"
)

// Migrations holds the schema applied by internal/migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// serializationAttempts bounds retries of a unit of work aborted by a
// serialization conflict.
const serializationAttempts = 3

type Store struct {
	db *sql.DB
}

var (
	_ lending.Store  = (*Store)(nil)
	_ ledger.Journal = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Update runs fn in one serializable transaction. Custody movements made
// through the transaction's Custodian commit with it.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx lending.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx lending.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx lending.Tx) error) error {
	var err error
	for attempt := 0; attempt < serializationAttempts; attempt++ {
		err = s.once(ctx, readOnly, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) once(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx lending.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// Balances carry a range check, so a credit past uint64 surfaces as a
// check violation.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

// Amounts exceed int64, so they travel as decimal text into numeric columns.
func num(v uint64) string { return strconv.FormatUint(v, 10) }
