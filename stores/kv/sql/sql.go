// Package sql is a kv.Store on a single key/value table in sqlite or postgres.
package sql

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/chainlite/util/usql"
	levelutil "github.com/btcsuite/goleveldb/leveldb/util"
)

type Store struct {
	logger ulogger.Logger
	db     *usql.DB
	engine util.SQLEngine
}

func New(ctx context.Context, logger ulogger.Logger, storeURL *url.URL, dataFolder string) (*Store, error) {
	logger = logger.New("kvsql")

	db, err := util.InitSQLDB(logger, storeURL, dataFolder)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger: logger,
		db:     db,
		engine: util.SQLEngine(storeURL.Scheme),
	}

	if err = s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	var q string

	switch s.engine {
	case util.Postgres:
		q = `CREATE TABLE IF NOT EXISTS kv (
			 key   BYTEA PRIMARY KEY
			,value BYTEA NOT NULL
		)`
	default:
		q = `CREATE TABLE IF NOT EXISTS kv (
			 key   BLOB PRIMARY KEY
			,value BLOB NOT NULL
		)`
	}

	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errors.NewStorageError("could not create kv table", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	return get(ctx, s.db.QueryRowContext, key)
}

func (s *Store) Has(ctx context.Context, key []byte) (bool, error) {
	return has(ctx, s.db.QueryRowContext, key)
}

func (s *Store) NewIterator(ctx context.Context, prefix []byte) kv.Iterator {
	return newIterator(ctx, s.db.QueryContext, prefix)
}

func (s *Store) ApplyBatch(ctx context.Context, ops []kv.Operation) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("[kvsql] failed to begin batch", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, op := range ops {
		switch op.Type {
		case kv.OperationPut:
			value := op.Value
			if value == nil {
				value = []byte{}
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO kv (key, value) VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value
			`, op.Key, value)
		case kv.OperationDel:
			_, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, op.Key)
		default:
			err = errors.NewInvalidArgumentError("[kvsql] unknown operation type %d", op.Type)
			return err
		}

		if err != nil {
			err = errors.NewStorageError("[kvsql] failed to apply %s %q", op.Type, op.Key, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = errors.NewStorageError("[kvsql] failed to commit batch of %d operations", len(ops), err)
		return err
	}

	return nil
}

// Snapshot opens a transaction that is held until Release. On postgres it runs at repeatable
// read isolation.
func (s *Store) Snapshot(ctx context.Context) (kv.Snapshot, error) {
	var opts *sql.TxOptions
	if s.engine == util.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.NewStorageError("[kvsql] failed to begin snapshot", err)
	}

	return &snapshot{tx: tx}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("[kvsql] failed to close", err)
	}

	return nil
}

type snapshot struct {
	tx *usql.Tx
}

func (s *snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	return get(ctx, s.tx.QueryRowContext, key)
}

func (s *snapshot) Has(ctx context.Context, key []byte) (bool, error) {
	return has(ctx, s.tx.QueryRowContext, key)
}

func (s *snapshot) NewIterator(ctx context.Context, prefix []byte) kv.Iterator {
	return newIterator(ctx, s.tx.QueryContext, prefix)
}

func (s *snapshot) Release() {
	_ = s.tx.Rollback()
}

type queryRowFunc func(ctx context.Context, query string, args ...interface{}) *sql.Row

type queryFunc func(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

func get(ctx context.Context, queryRow queryRowFunc, key []byte) ([]byte, error) {
	var value []byte

	if err := queryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("[kvsql] key %q not found", key)
		}

		return nil, errors.NewStorageError("[kvsql] failed to get %q", key, err)
	}

	return value, nil
}

func has(ctx context.Context, queryRow queryRowFunc, key []byte) (bool, error) {
	var count int

	if err := queryRow(ctx, `SELECT COUNT(*) FROM kv WHERE key = $1`, key).Scan(&count); err != nil {
		return false, errors.NewStorageError("[kvsql] failed to check %q", key, err)
	}

	return count > 0, nil
}

func newIterator(ctx context.Context, query queryFunc, prefix []byte) kv.Iterator {
	r := levelutil.BytesPrefix(prefix)

	var (
		rows *sql.Rows
		err  error
	)

	if r.Limit == nil {
		rows, err = query(ctx, `SELECT key, value FROM kv WHERE key >= $1 ORDER BY key`, r.Start)
	} else {
		rows, err = query(ctx, `SELECT key, value FROM kv WHERE key >= $1 AND key < $2 ORDER BY key`, r.Start, r.Limit)
	}

	if err != nil {
		return &iterator{err: errors.NewStorageError("[kvsql] failed to scan prefix %q", prefix, err)}
	}

	return &iterator{rows: rows}
}

type iterator struct {
	rows  *sql.Rows
	key   []byte
	value []byte
	err   error
}

func (it *iterator) Next() bool {
	if it.err != nil || it.rows == nil {
		return false
	}

	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = errors.NewStorageError("[kvsql] iteration failed", err)
		}

		return false
	}

	if err := it.rows.Scan(&it.key, &it.value); err != nil {
		it.err = errors.NewStorageError("[kvsql] failed to scan row", err)
		return false
	}

	return true
}

func (it *iterator) Key() []byte {
	return it.key
}

func (it *iterator) Value() []byte {
	return it.value
}

func (it *iterator) Error() error {
	return it.err
}

func (it *iterator) Release() {
	if it.rows != nil {
		_ = it.rows.Close()
	}
}
