// Package store persists per-user calendars in an embedded badger database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"uqconnect/internal/model"
)

// ErrNotFound is returned when a user has no stored calendar.
var ErrNotFound = errors.New("calendar not found")

const calendarPrefix = "cal:"

// Store is a badger-backed calendar store. Keys are "cal:<userID>", values
// are JSON-encoded model.Calendar documents.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database directory at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open calendar store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory calendar store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(userID string) []byte {
	return []byte(calendarPrefix + userID)
}

// Get returns the stored calendar of userID or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (model.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return model.Calendar{}, err
	}
	var out model.Calendar
	err := s.db.View(func(txn *badger.Txn) error {
		return readCalendar(txn, userID, &out)
	})
	if err != nil {
		return model.Calendar{}, err
	}
	return out, nil
}

// Put replaces the calendar of cal.UserID.
func (s *Store) Put(ctx context.Context, cal model.Calendar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cal.UserID == "" {
		return errors.New("calendar has no user id")
	}
	buf, err := json.Marshal(cal)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(cal.UserID), buf)
	})
}

// Update applies fn to the calendar of userID inside one read-write
// transaction. A missing calendar is passed to fn as an empty document with
// the user id set. If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, userID string, fn func(*model.Calendar) error) (model.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return model.Calendar{}, err
	}
	var out model.Calendar
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := readCalendar(txn, userID, &out); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			out = model.Calendar{UserID: userID, Events: []model.CalendarEvent{}}
		}
		if err := fn(&out); err != nil {
			return err
		}
		out.UserID = userID
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(key(userID), buf)
	})
	if err != nil {
		return model.Calendar{}, err
	}
	return out, nil
}

// List returns every stored calendar in key order.
func (s *Store) List(ctx context.Context) ([]model.Calendar, error) {
	var out []model.Calendar
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(calendarPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cal model.Calendar
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cal)
			}); err != nil {
				return err
			}
			out = append(out, cal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readCalendar(txn *badger.Txn, userID string, out *model.Calendar) error {
	item, err := txn.Get(key(userID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
