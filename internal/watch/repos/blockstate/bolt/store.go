// Package bolt is a bbolt-backed domain.BlockLog. Records live in one bucket
// keyed by a big-endian sequence so cursor order is write order.
package bolt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	bbolt "go.etcd.io/bbolt"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// Stats summarizes the stored log.
type Stats struct {
	Records     int
	Version     uint64 // incremented by every committed rewrite
	UpdatedUnix int64  // time of the last committed rewrite
}

// Log implements domain.BlockLog using bbolt.
type Log struct {
	db     *bbolt.DB
	logger logpkg.Logger
	now    func() time.Time
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string, logger logpkg.Logger) (*Log, error) {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db, logger: logger, now: time.Now}, nil
}

func (l *Log) Close() error { return l.db.Close() }

// Load returns every decodable record in write order. Undecodable values
// are logged and skipped.
func (l *Log) Load() ([]domain.BlockRecord, error) {
	var out []domain.BlockRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec domain.BlockRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				l.logger.Warn(map[string]any{
					"key":   binary.BigEndian.Uint64(pad8(k)),
					"error": fmt.Errorf("%w: %v", domain.ErrPersistenceCorruption, err),
				}, "block_log_corrupt_record")
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// Append stores rec under the next sequence number.
func (l *Log) Append(rec domain.BlockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode block record: %w", err)
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket(bucketRecords), data)
	})
}

// StageRewrite encodes recs now; Commit replaces the bucket in a single
// transaction.
func (l *Log) StageRewrite(recs []domain.BlockRecord) (domain.Staged, error) {
	encoded := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode block record: %w", err)
		}
		encoded = append(encoded, data)
	}
	return &staged{log: l, encoded: encoded}, nil
}

// Stats reports the record count and rewrite metadata.
func (l *Log) Stats() Stats {
	st := Stats{}
	_ = l.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRecords); b != nil {
			st.Records = b.Stats().KeyN
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(metaVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(metaUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

type staged struct {
	log     *Log
	encoded [][]byte
	done    bool
}

func (s *staged) Commit() error {
	if s.done {
		return fmt.Errorf("bolt: rewrite already finalized")
	}
	s.done = true
	return s.log.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords) != nil {
			if err := tx.DeleteBucket(bucketRecords); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketRecords)
		if err != nil {
			return err
		}
		for _, data := range s.encoded {
			if err := putRecord(b, data); err != nil {
				return err
			}
		}
		return s.log.bumpMeta(tx)
	})
}

func (s *staged) Discard() error {
	s.done = true
	s.encoded = nil
	return nil
}

func (l *Log) bumpMeta(tx *bbolt.Tx) error {
	b := tx.Bucket(bucketMeta)
	var version uint64
	if v := b.Get(metaVersion); len(v) == 8 {
		version = binary.BigEndian.Uint64(v)
	}
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version+1)
	binary.BigEndian.PutUint64(ubuf, uint64(l.now().Unix()))
	if err := b.Put(metaVersion, vbuf); err != nil {
		return err
	}
	return b.Put(metaUpdated, ubuf)
}

func putRecord(b *bbolt.Bucket, data []byte) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return b.Put(key, data)
}

func pad8(k []byte) []byte {
	if len(k) >= 8 {
		return k[:8]
	}
	out := make([]byte, 8)
	copy(out[8-len(k):], k)
	return out
}

var _ domain.BlockLog = (*Log)(nil)
