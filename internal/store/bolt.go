package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// Bolt is an embedded single-host Store. Values are stored with an 8-byte
// big-endian expiry prefix (unix nanoseconds, 0 = none).
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func encodeBolt(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, 8+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.UnixNano()))
	}
	copy(buf[8:], value)
	return buf
}

// decodeBolt returns the stored value and whether it is still live.
func (b *Bolt) decodeBolt(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	exp := int64(binary.BigEndian.Uint64(raw[:8]))
	if exp != 0 && b.now().UnixNano() >= exp {
		return nil, false
	}
	return bytes.Clone(raw[8:]), true
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v, ok := b.decodeBolt(tx.Bucket(bucketKV).Get([]byte(key)))
		if !ok {
			return ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (b *Bolt) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), encodeBolt(value, time.Time{}))
	})
}

func (b *Bolt) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
}

func (b *Bolt) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	acquired := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		if _, ok := b.decodeBolt(bkt.Get([]byte(key))); ok {
			return nil
		}
		var exp time.Time
		if ttl > 0 {
			exp = b.now().Add(ttl)
		}
		acquired = true
		return bkt.Put([]byte(key), encodeBolt(value, exp))
	})
	return acquired, err
}

func (b *Bolt) DeleteIfEqual(_ context.Context, key string, value []byte) (bool, error) {
	deleted := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		cur, ok := b.decodeBolt(bkt.Get([]byte(key)))
		if !ok || !bytes.Equal(cur, value) {
			return nil
		}
		deleted = true
		return bkt.Delete([]byte(key))
	})
	return deleted, err
}

func (b *Bolt) Scan(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if _, ok := b.decodeBolt(v); ok {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	return keys, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

var _ Store = (*Bolt)(nil)
