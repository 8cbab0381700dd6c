// Package store wraps an embedded key-value engine with a two-column-family
// primary/index contract, grounded on original_source/src/barn.rs and
// src/barn/insert.rs (Barn, CF_INDEX, the default CF, WriteBatch-based
// atomic inserts, prefix_iterator_cf scans).
//
// Badger (github.com/dgraph-io/badger/v4) is the real Go ecosystem
// equivalent of the RocksDB wrapper the original builds on: an embedded,
// ordered LSM key-value store with atomic transactions and prefix
// iteration. Badger has no native column-family concept, so the two
// families are emulated with a one-byte family prefix ahead of every
// physical key (familyDefault / familyIndex below).
package store

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/clinicalregistry/barnreg/apperr"
)

type family byte

const (
	familyDefault family = 0x01 // primary-key rows: resourceType-hash-prefixed key -> JSON document
	familyIndex   family = 0x02 // value-index rows: parameter_hash-prefixed key -> primary key reference
)

// Store owns the physical Badger database and exposes the get/put_batch/
// prefix_iterator contract the indexer and search scanners depend on.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (creating if necessary) a Badger database rooted at dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Storage(err, "failed to open store at %q", dir)
	}
	logger.Info("store opened", slog.String("dir", dir))
	return &Store{db: db, log: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return apperr.Storage(err, "failed to close store")
	}
	return nil
}

func familyKey(f family, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(f)
	copy(out[1:], key)
	return out
}

// GetPrimary fetches the document bytes stored at a primary-key row.
func (s *Store) GetPrimary(ctx context.Context, key []byte) ([]byte, error) {
	return s.get(ctx, familyDefault, key)
}

// GetIndex fetches the raw value stored at an index row (rarely used
// directly — scans are the normal access pattern — but kept for symmetry
// with the original Barn::get contract and for point lookups by full key).
func (s *Store) GetIndex(ctx context.Context, key []byte) ([]byte, error) {
	return s.get(ctx, familyIndex, key)
}

func (s *Store) get(ctx context.Context, f family, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Timeout("context cancelled before read")
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(familyKey(f, key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperr.NotFound("key not found")
	}
	if err != nil {
		return nil, apperr.Storage(err, "read failed")
	}
	return out, nil
}

// Row is one key/value pair to write atomically via PutBatch.
type Row struct {
	Family family
	Key    []byte
	Value  []byte
}

// PrimaryRow constructs a Row destined for the default column family.
func PrimaryRow(key, value []byte) Row { return Row{Family: familyDefault, Key: key, Value: value} }

// IndexRow constructs a Row destined for the index column family.
func IndexRow(key, value []byte) Row { return Row{Family: familyIndex, Key: key, Value: value} }

// PutBatch writes every row atomically in a single Badger transaction,
// matching the original's `WriteBatch` usage in barn/insert.rs — two
// concurrent ingests never observe partial state.
func (s *Store) PutBatch(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return apperr.Timeout("context cancelled before write")
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, r := range rows {
			if err := txn.Set(familyKey(r.Family, r.Key), r.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Storage(err, "failed to commit write batch")
	}
	return nil
}

// Entry is one row returned from a prefix scan.
type Entry struct {
	Key   []byte // physical key, family byte stripped
	Value []byte
}

// PrefixIteratorIndex walks every index-family row whose key starts with
// prefix, in ascending lexicographic key order, invoking fn for each. It
// stops early if fn returns false or ctx is cancelled between rows,
// matching 4.E's scanner cancellation contract and the original's
// `prefix_iterator_cf(cf, expr.hash)`.
func (s *Store) PrefixIteratorIndex(ctx context.Context, prefix []byte, fn func(Entry) (bool, error)) error {
	return s.prefixIterator(ctx, familyIndex, prefix, fn)
}

// PrefixIteratorPrimary walks every primary-family row whose key starts
// with prefix — used by the NOT composer's type-hash prefix complement
// scan.
func (s *Store) PrefixIteratorPrimary(ctx context.Context, prefix []byte, fn func(Entry) (bool, error)) error {
	return s.prefixIterator(ctx, familyDefault, prefix, fn)
}

func (s *Store) prefixIterator(ctx context.Context, f family, prefix []byte, fn func(Entry) (bool, error)) error {
	fullPrefix := familyKey(f, prefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = fullPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return apperr.Timeout("scan cancelled mid-iteration")
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return apperr.Storage(err, "failed reading index entry")
			}
			cont, err := fn(Entry{Key: key[1:], Value: value})
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// HasPrefix reports whether key begins with prefix; a small helper kept
// here (rather than bytes.HasPrefix at call sites) so callers never need to
// reason about the stripped family byte.
func HasPrefix(key, prefix []byte) bool { return bytes.HasPrefix(key, prefix) }
