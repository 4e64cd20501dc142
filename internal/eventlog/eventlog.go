// Package eventlog is the durable half of the progress-reporting
// persistence abstraction: an append-only log of JobEvent rows, keyed by
// session so a consumer can resume a stream from a last-seen id. Backed by
// an embedded single-file store rather than a relational table because its
// bucket sequence numbers are a direct, lock-free match for "strictly
// increasing event ids per session".
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/cleanr/inboxengine/internal/utils"
)

// JobEvent is one durable progress record. ID is unique and strictly
// increasing within Session, assigned by Append from the bucket's next
// sequence number.
type JobEvent struct {
	ID        uint64    `json:"id"`
	JobID     *uint     `json:"job_id,omitempty"`
	RunID     *uint     `json:"run_id,omitempty"`
	Session   string    `json:"session_id"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const sessionsRoot = "sessions"

// Log wraps a bbolt database with one nested bucket per session, each
// holding its events under sequence-number keys so iteration order equals
// insertion order.
type Log struct {
	db *bbolt.DB
}

func Open(path string) (*Log, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "eventlog: open %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsRoot))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "eventlog: init root bucket")
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Append writes one event to the named session's bucket, assigning it the
// bucket's next sequence number as ID. Safe for concurrent use within the
// process that opened the log. bbolt holds an exclusive lock on the file
// while it is open, so another process's Open of the same file waits and
// fails after Open's 5s timeout.
func (l *Log) Append(session string, event string, jobID, runID *uint, data any) (*JobEvent, error) {
	ev := &JobEvent{
		JobID:     jobID,
		RunID:     runID,
		Session:   session,
		Event:     event,
		Data:      data,
		CreatedAt: utils.Now(),
	}
	err := l.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(sessionsRoot))
		b, err := root.CreateBucketIfNotExists([]byte(session))
		if err != nil {
			return err
		}
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		ev.ID = id
		encoded, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal event")
		}
		return b.Put(seqKey(id), encoded)
	})
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: append")
	}
	return ev, nil
}

// Scan returns events in a session strictly after afterID, in ascending
// order, stopping once limit events have been collected (limit <= 0 means
// unbounded). It is the durable-cursor resume primitive the progress bus
// polls against.
func (l *Log) Scan(session string, afterID uint64, limit int) ([]*JobEvent, error) {
	var out []*JobEvent
	err := l.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(sessionsRoot))
		b := root.Bucket([]byte(session))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if afterID == 0 {
			k, v = c.First()
		} else {
			k, v = c.Seek(seqKey(afterID))
			if k != nil && seqKeyID(k) == afterID {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			var ev JobEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return errors.Wrap(err, "unmarshal event")
			}
			out = append(out, &ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: scan")
	}
	return out, nil
}

func seqKey(id uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(id)
		id >>= 8
	}
	return b
}

func seqKeyID(k []byte) uint64 {
	var id uint64
	for _, c := range k {
		id = id<<8 | uint64(c)
	}
	return id
}
