// Package moderation records block and report actions against chat
// partners. Records are local only: the server relays moderation events but
// keeps no per-client history, so the client persists its own.
package moderation

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Kind classifies a moderation record.
type Kind string

const (
	KindBlock  Kind = "block"
	KindReport Kind = "report"
)

var buckets = map[Kind][]byte{
	KindBlock:  []byte("blocks"),
	KindReport: []byte("reports"),
}

// Record is one persisted moderation action.
type Record struct {
	ID        uuid.UUID `json:"id"`
	SubjectID string    `json:"subject_id"`
	Kind      Kind      `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Store persists moderation records in a bbolt file, one bucket per kind,
// keyed by insertion sequence so iteration preserves order across reopens.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the store at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open moderation store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init moderation store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Add persists one record of the given kind against subjectID and returns
// it with its generated id and timestamp filled in.
func (s *Store) Add(kind Kind, subjectID, reason string) (Record, error) {
	bucket, ok := buckets[kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown moderation kind %q", kind)
	}
	rec := Record{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Kind:      kind,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
	if err != nil {
		return Record{}, fmt.Errorf("persist %s: %w", kind, err)
	}
	return rec, nil
}

// Records returns all records of the given kind in insertion order.
func (s *Store) Records(kind Kind) ([]Record, error) {
	bucket, ok := buckets[kind]
	if !ok {
		return nil, fmt.Errorf("unknown moderation kind %q", kind)
	}
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, val []byte) error {
			var rec Record
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read %s records: %w", kind, err)
	}
	return out, nil
}

// IsBlocked reports whether subjectID has a block record.
func (s *Store) IsBlocked(subjectID string) (bool, error) {
	blocked := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(buckets[KindBlock]).ForEach(func(_, val []byte) error {
			var rec Record
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			if rec.SubjectID == subjectID {
				blocked = true
			}
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}
