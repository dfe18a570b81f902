// Package history keeps a local ledger of deploys in a bbolt file, so the
// operator can see which version went to which server and when.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deploy.evalgo.org/db/bolt"
	"deploy.evalgo.org/folder"
)

const bucket = "deploys"

// Deploy states.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one deploy.
type Record struct {
	ID       string    `json:"id"`
	Site     string    `json:"site"`
	Server   string    `json:"server"`
	Version  string    `json:"version"`
	Install  string    `json:"install"`
	User     string    `json:"user"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
}

// key sorts records by start time.
func (r *Record) key() string {
	return r.Started.UTC().Format("20060102T150405.000000000") + "-" + r.ID
}

// Store is the deploy ledger.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateBucket(bucket); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Start records a deploy as running.
func (s *Store) Start(site, server, version, install string) (*Record, error) {
	rec := &Record{
		ID:      uuid.NewString(),
		Site:    site,
		Server:  server,
		Version: version,
		Install: install,
		User:    folder.CurrentUser(),
		Status:  StatusRunning,
		Started: s.now(),
	}
	if err := s.db.PutJSON(bucket, rec.key(), rec); err != nil {
		return nil, fmt.Errorf("failed to record deploy: %w", err)
	}
	return rec, nil
}

// Finish marks rec as a success, or as failed when err is not nil.
func (s *Store) Finish(rec *Record, err error) error {
	rec.Finished = s.now()
	rec.Status = StatusSuccess
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	}
	if putErr := s.db.PutJSON(bucket, rec.key(), rec); putErr != nil {
		return fmt.Errorf("failed to record deploy: %w", putErr)
	}
	return nil
}

// List returns the deploys of site, newest first. An empty site lists all.
func (s *Store) List(site string) ([]Record, error) {
	var records []Record
	err := s.db.Reverse(bucket, func(key string, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to read deploy %s: %w", key, err)
		}
		if site == "" || rec.Site == site {
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Last returns the newest deploy of site, or nil.
func (s *Store) Last(site string) (*Record, error) {
	var last *Record
	err := s.db.Reverse(bucket, func(key string, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to read deploy %s: %w", key, err)
		}
		if rec.Site != site {
			return nil
		}
		last = &rec
		return bolt.ErrStop
	})
	return last, err
}
