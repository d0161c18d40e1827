package events

import (
	"time"

	"go.etcd.io/bbolt"
)

// Journal records condition variable traffic into wait/notify record
// stores. It implements the condvar package's Journal interface and is
// safe for concurrent use (bbolt serializes the updates).
type Journal struct {
	_waits    RecordStore[WaitRecord]
	_notifies RecordStore[NotifyRecord]
}

// NewJournal creates a Journal backed by db.
func NewJournal(db *bbolt.DB) (*Journal, error) {
	waits, err := NewRecordStore[WaitRecord](db)
	if err != nil {
		return nil, err
	}
	notifies, err := NewRecordStore[NotifyRecord](db)
	if err != nil {
		return nil, err
	}

	return &Journal{
		_waits:    waits,
		_notifies: notifies,
	}, nil
}

func (j *Journal) WaitStarted(cond, waiter string, caller string) error {
	return j._waits.Put(cond, func(r *WaitRecord, _ bool) {
		r.Logs = append(r.Logs, WaitLog{
			Event:     WaitEventBlocked,
			Waiter:    waiter,
			Caller:    caller,
			Timestamp: time.Now().UnixNano(),
		})
	})
}

func (j *Journal) WaitFinished(cond, waiter string, caller string, timedOut bool) error {
	event := WaitEventWoke
	if timedOut {
		event = WaitEventTimedOut
	}
	return j._waits.Put(cond, func(r *WaitRecord, _ bool) {
		r.Logs = append(r.Logs, WaitLog{
			Event:     event,
			Waiter:    waiter,
			Caller:    caller,
			Timestamp: time.Now().UnixNano(),
		})
	})
}

func (j *Journal) Notified(cond string, caller string, broadcast bool) error {
	event := NotifyEventSignal
	if broadcast {
		event = NotifyEventBroadcast
	}
	return j._notifies.Put(cond, func(r *NotifyRecord, _ bool) {
		r.Logs = append(r.Logs, NotifyLog{
			Event:     event,
			Caller:    caller,
			Timestamp: time.Now().UnixNano(),
		})
	})
}
