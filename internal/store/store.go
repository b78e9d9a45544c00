// Package store wraps Badger as the sole durable key-value backend.
// Every key is namespace-prefixed and capped at 15 ASCII bytes; the
// underlying SQL engine the teacher carried alongside Badger has no
// role here — persisted state is opaque namespaced blobs, never rows.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/apperrors"
)

// Namespace prefixes, fixed per the external key contract.
const (
	NamespaceUserMemory Namespace = "u_"
	NamespaceChatConfig Namespace = "tc_"
	NamespaceLLMConfig  Namespace = "cc_"
	NamespaceCron       Namespace = "cron_"
	NamespaceTimezone   Namespace = "tz_"
	NamespaceBoot       Namespace = "boot_"
	// NamespaceUserTools holds user-defined tools. Tool names run up to
	// 32 chars, too long to fit the 15-byte key cap directly, so tools
	// are keyed by a short numeric slot (0..K-1) and the name lives
	// inside the value.
	NamespaceUserTools Namespace = "ut_"

	maxKeyBytes = 15
)

type Namespace string

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: not found")

// Store is a namespaced, durable key-value store backed by Badger.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the Badger database at dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil).WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.StoreCorruption("open badger database", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func fullKey(ns Namespace, key string) ([]byte, error) {
	full := string(ns) + key
	if len(full) > maxKeyBytes {
		return nil, apperrors.Validation("key", fmt.Sprintf("exceeds %d bytes: %q", maxKeyBytes, full))
	}
	for i := 0; i < len(full); i++ {
		if full[i] > 127 {
			return nil, apperrors.Validation("key", "must be ASCII")
		}
	}
	return []byte(full), nil
}

// Get returns the value for (namespace, key), or ErrNotFound if absent.
func (s *Store) Get(ns Namespace, key string) ([]byte, error) {
	fk, err := fullKey(ns, key)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fk)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.StoreCorruption("get "+string(fk), err)
	}
	return out, nil
}

// Put writes value for (namespace, key). The write is fsynced before
// this call returns.
func (s *Store) Put(ns Namespace, key string, value []byte) error {
	fk, err := fullKey(ns, key)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fk, value)
	})
	if err != nil {
		return apperrors.StoreCorruption("put "+string(fk), err)
	}
	return nil
}

// Delete removes (namespace, key). Deleting an absent key is not an error.
func (s *Store) Delete(ns Namespace, key string) error {
	fk, err := fullKey(ns, key)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fk)
	})
	if err != nil {
		return apperrors.StoreCorruption("delete "+string(fk), err)
	}
	return nil
}

// Entry is one (key-without-namespace, value) pair returned by Iterate.
type Entry struct {
	Key   string
	Value []byte
}

// Iterate returns every entry under namespace, in key order, with the
// namespace prefix stripped from each returned key.
func (s *Store) Iterate(ns Namespace) ([]Entry, error) {
	var entries []Entry
	prefix := []byte(ns)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			k := string(item.Key()[len(prefix):])
			entries = append(entries, Entry{Key: k, Value: val})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.StoreCorruption("iterate "+string(ns), err)
	}
	return entries, nil
}

// CountPrefix returns the number of keys under namespace, for callers
// enforcing a capacity cap.
func (s *Store) CountPrefix(ns Namespace) (int, error) {
	entries, err := s.Iterate(ns)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
