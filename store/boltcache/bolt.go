// Package boltcache implements the persistent cache contract on top of bbolt,
// with zstd compression for larger payloads.
package boltcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"

	"github.com/wolfeidau/release-cache/store"
)

const (
	// compressionThreshold is the minimum payload size before compression
	// is considered. zstd overhead is not worth it for smaller payloads.
	compressionThreshold = 2048

	// maxDecompressedSize is the hard cap during decompression to prevent
	// compression bombs.
	maxDecompressedSize = 10 * 1024 * 1024 // 10MB
)

// envelope is the on-disk representation of a store.Record.
type envelope struct {
	Payload    []byte    `json:"payload"`
	Compressed bool      `json:"compressed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DB is a bbolt-backed store.Cache. Each bin maps to a bucket.
type DB struct {
	db      *bbolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(d *DB) {
		d.now = now
	}
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	d.db = db

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	d.encoder = enc
	d.decoder = dec

	d.logger.Debug("opened cache database", "path", path)
	return d, nil
}

// Close closes the database and releases codec resources.
func (d *DB) Close() error {
	if d.encoder != nil {
		d.encoder.Close()
	}
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Get retrieves the record stored under key in bin.
func (d *DB) Get(_ context.Context, bin, key string) (*store.Record, error) {
	var raw []byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bin))
		if bucket == nil {
			return store.ErrNotFound
		}
		val := bucket.Get([]byte(key))
		if val == nil {
			return store.ErrNotFound
		}
		raw = make([]byte, len(val))
		copy(raw, val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding cache record %s/%s: %w", bin, key, err)
	}

	payload := env.Payload
	if env.Compressed {
		payload, err = d.decoder.DecodeAll(env.Payload, make([]byte, 0, len(env.Payload)*4))
		if err != nil {
			return nil, fmt.Errorf("decompressing cache record %s/%s: %w", bin, key, err)
		}
		if len(payload) > maxDecompressedSize {
			return nil, fmt.Errorf("cache record %s/%s exceeds maximum decompressed size", bin, key)
		}
	}

	return &store.Record{
		Payload:   payload,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}

// Set stores payload under key in bin, overwriting any existing record.
func (d *DB) Set(_ context.Context, bin, key string, payload []byte, expiresAt time.Time) error {
	env := envelope{
		Payload:   payload,
		CreatedAt: d.now(),
		ExpiresAt: expiresAt,
	}

	if len(payload) >= compressionThreshold {
		compressed := d.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		if len(compressed) < len(payload) {
			env.Payload = compressed
			env.Compressed = true
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding cache record %s/%s: %w", bin, key, err)
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bin))
		if err != nil {
			return fmt.Errorf("creating bin %s: %w", bin, err)
		}
		if err := bucket.Put([]byte(key), raw); err != nil {
			return fmt.Errorf("putting cache record %s/%s: %w", bin, key, err)
		}
		return nil
	})
}

// Clear removes the record under key in bin. Clearing an absent key is a
// no-op.
func (d *DB) Clear(_ context.Context, bin, key string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bin))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

// Reap deletes every record in bin whose expiry has passed, returning the
// number of records removed.
func (d *DB) Reap(_ context.Context, bin string) (int, error) {
	now := d.now()
	removed := 0
	err := d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bin))
		if bucket == nil {
			return nil
		}

		var expired [][]byte
		cur := bucket.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				// Unreadable records are treated as expired.
				expired = append(expired, append([]byte(nil), k...))
				continue
			}
			if !now.Before(env.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("deleting expired record %s/%s: %w", bin, string(k), err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		d.logger.Debug("reaped expired cache records", "bin", bin, "removed", removed)
	}
	return removed, nil
}

// Compile-time interface check
var _ store.Cache = (*DB)(nil)
