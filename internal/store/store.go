// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package store provides the embedded BadgerDB key-value store backing
// ushadow's persistent state: registered services, provider
// configurations, share tokens, sessions, u-nodes, and instances.
//
// State is organized into named buckets (key prefixes) holding JSON
// values. All operations are safe for concurrent use.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// ErrKeyNotFound is returned when a key does not exist in a bucket.
var ErrKeyNotFound = errors.New("key not found")

// DB wraps a Badger database.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) the store at the configured path.
func Open(cfg config.StoreConfig) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger's own logger is noisy at INFO; route through zerolog at
	// debug level instead.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens an ephemeral store. Intended for tests.
func OpenInMemory() (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Badger exposes the underlying database for callers needing raw
// transactions.
func (d *DB) Badger() *badger.DB {
	return d.db
}

// RunGC runs one round of Badger value-log garbage collection.
// badger.ErrNoRewrite (nothing to collect) is not an error.
func (d *DB) RunGC() error {
	err := d.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Bucket is a key-prefix namespace with JSON-encoded values.
type Bucket struct {
	db   *badger.DB
	name string
}

// Bucket returns the named bucket. Buckets need no creation step; the
// name becomes the key prefix.
func (d *DB) Bucket(name string) *Bucket {
	return &Bucket{db: d.db, name: name}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

func (b *Bucket) key(k string) []byte {
	return []byte(b.name + ":" + k)
}

// Put stores value under key, JSON-encoded.
func (b *Bucket) Put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", b.name, key, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), data)
	})
	metrics.RecordStoreOperation(b.name, "put", err)
	return err
}

// Get loads the value at key into out.
func (b *Bucket) Get(key string, out interface{}) error {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", b.name, key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	metrics.RecordStoreOperation(b.name, "get", err)
	return err
}

// Exists reports whether key is present.
func (b *Bucket) Exists(key string) (bool, error) {
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Delete removes key. Deleting a missing key is a no-op.
func (b *Bucket) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	metrics.RecordStoreOperation(b.name, "delete", err)
	return err
}

// ForEach iterates every key in the bucket, invoking fn with the bare
// key (prefix stripped) and raw JSON value. Returning an error from fn
// stops iteration.
func (b *Bucket) ForEach(fn func(key string, value []byte) error) error {
	prefix := []byte(b.name + ":")
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), b.name+":")
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys returns all bare keys in the bucket.
func (b *Bucket) Keys() ([]string, error) {
	prefix := []byte(b.name + ":")
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), b.name+":"))
		}
		return nil
	})
	return keys, err
}

// Count returns the number of keys in the bucket.
func (b *Bucket) Count() (int, error) {
	keys, err := b.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Mutate atomically reads, transforms, and writes the value at key in a
// single transaction. fn receives the current raw JSON (never nil; a
// missing key yields ErrKeyNotFound before fn runs) and returns the
// replacement. Conflicting concurrent mutations are retried.
func (b *Bucket) Mutate(key string, fn func(current []byte) ([]byte, error)) error {
	for {
		err := b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(b.key(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			if err != nil {
				return fmt.Errorf("get %s/%s: %w", b.name, key, err)
			}

			var current []byte
			if err := item.Value(func(val []byte) error {
				current = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			return txn.Set(b.key(key), next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		metrics.RecordStoreOperation(b.name, "mutate", err)
		return err
	}
}

// badgerLogger adapts Badger's logger interface onto zerolog, demoting
// its INFO chatter to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}
