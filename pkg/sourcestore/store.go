package sourcestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("sources")

var ErrNotFound = errors.New("source not found")

type Origin string

const (
	OriginURL  Origin = "url"
	OriginFile Origin = "file"
	OriginText Origin = "text"
)

// Source records one ingested unit. It is immutable once written;
// re-ingestion under the same id supersedes the record rather than
// mutating it.
type Source struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Origin        Origin    `json:"origin"`
	ChunkCount    int       `json:"chunk_count"`
	SkippedChunks int       `json:"skipped_chunks"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Store is a bbolt-backed registry of ingested sources.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for source store: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open source store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Put(src *Source) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source %q: %w", src.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(src.ID), data)
	})
}

func (s *Store) Get(id string) (*Source, error) {
	var src *Source
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		src = &Source{}
		return json.Unmarshal(data, src)
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (s *Store) Exists(id string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketName).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

func (s *Store) List() ([]Source, error) {
	var sources []Source
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(_, data []byte) error {
			var src Source
			if err := json.Unmarshal(data, &src); err != nil {
				return err
			}
			sources = append(sources, src)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
