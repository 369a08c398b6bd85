// Package store implements the metadata store (spec.md component C2): a
// durable, transactional key/value store mapping remote paths to tracked
// content hashes, plus a pending-update queue.
//
// Modeled on the teacher's internal/sync/state.go (SQLiteStore): a
// pure-Go SQLite driver in WAL mode, schema managed by embedded goose
// migrations (internal/sync/migrations.go). Each operation runs its SQL
// directly through database/sql; no statements are prepared ahead.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/dsync-go/dsync/internal/dsyncerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Operation identifies a pending update's kind. Values match spec.md
// section 4.1: 1=ADD, 2=REMOVE, 3=UPDATE.
type Operation int

// Pending-update operations.
const (
	OpAdd    Operation = 1
	OpRemove Operation = 2
	OpUpdate Operation = 3
)

// Record is a tracked file record: a remote path and its repo hash.
type Record struct {
	Path string
	Hash []byte
}

// Update is a pending operation queued for the next push.
type Update struct {
	Path      string
	Operation Operation
}

// walJournalSizeLimit bounds the WAL file so long-running repos don't
// grow it unbounded between checkpoints.
const walJournalSizeLimit = 67108864 // 64 MiB

// Store is the SQLite-backed metadata store for one repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the metadata store at dbPath, applying pending
// migrations. Pass ":memory:" for tests. Idempotent: safe to call on an
// already-initialized store.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, dsyncerr.Store("open sqlite", err)
	}

	if err := setPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return dsyncerr.Store("set pragma "+p, err)
		}
	}

	return nil
}

func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())

	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return dsyncerr.Store("creating migration sub-filesystem", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return dsyncerr.Store("creating migration provider", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		return dsyncerr.Store("running migrations", err)
	}

	return nil
}

// Find looks up the tracked record for path. Returns (nil, nil) if the
// path is not tracked.
func (s *Store) Find(path string) (*Record, error) {
	row := s.db.QueryRow("SELECT path, hash FROM files WHERE path = ?", path)

	var rec Record
	if err := row.Scan(&rec.Path, &rec.Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // sentinel for "not tracked"
		}

		return nil, dsyncerr.Store("find "+path, err)
	}

	return &rec, nil
}

// ListAll returns every tracked record keyed by path. Unordered.
func (s *Store) ListAll() (map[string]*Record, error) {
	rows, err := s.db.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, dsyncerr.Store("list all", err)
	}
	defer rows.Close()

	out := make(map[string]*Record)

	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Path, &rec.Hash); err != nil {
			return nil, dsyncerr.Store("scan file row", err)
		}

		out[rec.Path] = &rec
	}

	if err := rows.Err(); err != nil {
		return nil, dsyncerr.Store("iterate file rows", err)
	}

	return out, nil
}

// Upsert inserts or replaces the record for rec.Path.
func (s *Store) Upsert(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`,
		rec.Path, rec.Hash,
	)
	if err != nil {
		return dsyncerr.Store("upsert "+rec.Path, err)
	}

	return nil
}

// UpsertMany inserts or replaces all records atomically: any failure
// aborts the whole batch with no partial effect.
func (s *Store) UpsertMany(recs []Record) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, rec := range recs {
			if _, err := tx.Exec(
				`INSERT INTO files (path, hash) VALUES (?, ?)
				 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`,
				rec.Path, rec.Hash,
			); err != nil {
				return dsyncerr.Store("upsert many "+rec.Path, err)
			}
		}

		return nil
	})
}

// Delete removes path from both the files and updates tables.
func (s *Store) Delete(path string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
			return dsyncerr.Store("delete file "+path, err)
		}

		if _, err := tx.Exec("DELETE FROM updates WHERE path = ?", path); err != nil {
			return dsyncerr.Store("delete update "+path, err)
		}

		return nil
	})
}

// EnqueueUpdate inserts or replaces path's pending operation. A later
// enqueue for the same path replaces the earlier one.
func (s *Store) EnqueueUpdate(path string, op Operation) error {
	_, err := s.db.Exec(
		`INSERT INTO updates (path, operation) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET operation = excluded.operation`,
		path, int(op),
	)
	if err != nil {
		return dsyncerr.Store("enqueue "+path, err)
	}

	return nil
}

// EnqueueMany enqueues every update atomically.
func (s *Store) EnqueueMany(updates []Update) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, u := range updates {
			if _, err := tx.Exec(
				`INSERT INTO updates (path, operation) VALUES (?, ?)
				 ON CONFLICT(path) DO UPDATE SET operation = excluded.operation`,
				u.Path, int(u.Operation),
			); err != nil {
				return dsyncerr.Store("enqueue many "+u.Path, err)
			}
		}

		return nil
	})
}

// ListUpdates returns queued updates in deterministic insertion order.
func (s *Store) ListUpdates() ([]Update, error) {
	rows, err := s.db.Query("SELECT path, operation FROM updates ORDER BY seq")
	if err != nil {
		return nil, dsyncerr.Store("list updates", err)
	}
	defer rows.Close()

	var out []Update

	for rows.Next() {
		var (
			u  Update
			op int
		)

		if err := rows.Scan(&u.Path, &op); err != nil {
			return nil, dsyncerr.Store("scan update row", err)
		}

		u.Operation = Operation(op)
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, dsyncerr.Store("iterate update rows", err)
	}

	return out, nil
}

// ClearUpdates empties the entire update queue.
func (s *Store) ClearUpdates() error {
	if _, err := s.db.Exec("DELETE FROM updates"); err != nil {
		return dsyncerr.Store("clear updates", err)
	}

	return nil
}

// ClearUpdatesFor removes only the named paths from the update queue.
func (s *Store) ClearUpdatesFor(paths []string) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, p := range paths {
			if _, err := tx.Exec("DELETE FROM updates WHERE path = ?", p); err != nil {
				return dsyncerr.Store("clear update "+p, err)
			}
		}

		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error so batch mutations are atomic.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return dsyncerr.Store("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return dsyncerr.Store("rollback after error", errors.Join(err, rbErr))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return dsyncerr.Store("commit transaction", err)
	}

	return nil
}
