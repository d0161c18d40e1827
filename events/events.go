// Package events persists the wait/notify history of condition
// variables to a bbolt database, for inspection with cmd/viewevents.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// ErrRecordNotFound is returned by RecordStore.Get for unknown names.
var ErrRecordNotFound = errors.New("events: record not found")

// WaitEvent is a kind of event in the wait log.
type WaitEvent string

const (
	// WaitEventBlocked represents that a waiter started blocking.
	WaitEventBlocked WaitEvent = "blocked"
	// WaitEventWoke represents that a waiter was woken by a notify.
	WaitEventWoke WaitEvent = "woke"
	// WaitEventTimedOut represents that a timed wait expired.
	WaitEventTimedOut WaitEvent = "timedout"
)

type (
	WaitRecord struct {
		Logs []WaitLog `json:"logs"`
	}

	WaitLog struct {
		Event     WaitEvent `json:"event"`
		Waiter    string    `json:"waiter"`
		Caller    string    `json:"caller,omitempty"`
		Timestamp int64     `json:"ts,string"`
	}
)

// NotifyEvent is a kind of event in the notify log.
type NotifyEvent string

const (
	NotifyEventSignal    NotifyEvent = "signal"
	NotifyEventBroadcast NotifyEvent = "broadcast"
)

type (
	NotifyRecord struct {
		Logs []NotifyLog `json:"logs"`
	}

	NotifyLog struct {
		Event     NotifyEvent `json:"event"`
		Caller    string      `json:"caller,omitempty"`
		Timestamp int64       `json:"ts,string"`
	}
)

type recordType interface {
	WaitRecord | NotifyRecord
}

// RecordStore provides read/write access to records of type T, keyed
// by condition variable name.
type RecordStore[T recordType] interface {
	// Get retrieves the record. If not found, ErrRecordNotFound is returned.
	Get(name string) (*T, error)
	// Set stores the record as is.
	Set(name string, r *T) error
	// Put modifies the record through fn.
	// update tells whether the record already exists.
	Put(name string, fn func(r *T, update bool)) error
	// ForEach iterates all stored records.
	ForEach(fn func(name string, r *T) error) error
}

type recordStore[T recordType] struct {
	_db     *bbolt.DB
	_bucket []byte
}

// NewRecordStore creates a RecordStore for the record type T.
// Records are stored in a bucket dedicated to T.
func NewRecordStore[T recordType](db *bbolt.DB) (RecordStore[T], error) {
	var t T
	bucket := []byte(fmt.Sprintf("%T", t))

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("events: failed to create bucket: %w", err)
	}

	return &recordStore[T]{
		_db:     db,
		_bucket: bucket,
	}, nil
}

func (s *recordStore[T]) Get(name string) (*T, error) {
	var r *T
	err := s._db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(s._bucket).Get([]byte(name))
		if data == nil {
			return ErrRecordNotFound
		}
		r = new(T)
		return json.Unmarshal(data, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *recordStore[T]) Set(name string, r *T) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s._db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s._bucket).Put([]byte(name), data)
	})
}

func (s *recordStore[T]) Put(name string, fn func(r *T, update bool)) error {
	return s._db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s._bucket)

		var (
			r      = new(T)
			update bool
		)
		if data := b.Get([]byte(name)); data != nil {
			if err := json.Unmarshal(data, r); err != nil {
				return err
			}
			update = true
		}
		fn(r, update)

		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

func (s *recordStore[T]) ForEach(fn func(name string, r *T) error) error {
	return s._db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s._bucket).ForEach(func(k, v []byte) error {
			r := new(T)
			if err := json.Unmarshal(v, r); err != nil {
				return err
			}
			return fn(string(k), r)
		})
	})
}
