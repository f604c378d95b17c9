// Package history keeps a record of each update run on disk.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const recordExt = ".cbor"

// Record describes one finished update run.
type Record struct {
	ID            string    `cbor:"id" json:"id" yaml:"id"`
	StartedAt     time.Time `cbor:"started_at" json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `cbor:"finished_at" json:"finished_at" yaml:"finished_at"`
	Channel       string    `cbor:"channel" json:"channel" yaml:"channel"`
	From          string    `cbor:"from" json:"from" yaml:"from"`
	To            string    `cbor:"to,omitempty" json:"to,omitempty" yaml:"to,omitempty"`
	State         string    `cbor:"state" json:"state" yaml:"state"`
	Error         string    `cbor:"error,omitempty" json:"error,omitempty" yaml:"error,omitempty"`
	ArchiveSize   int64     `cbor:"archive_size,omitempty" json:"archive_size,omitempty" yaml:"archive_size,omitempty"`
	ArchiveDigest string    `cbor:"archive_digest,omitempty" json:"archive_digest,omitempty" yaml:"archive_digest,omitempty"`
}

// Duration is how long the run took.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Manager stores records as one file per run.
type Manager struct {
	dir  string
	enc  cbor.EncMode
	now  func() time.Time
	seqs map[string]int
}

// NewManager returns a manager rooted at dir. The directory is created on
// first save.
func NewManager(dir string) (*Manager, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to set up record encoding: %w", err)
	}
	return &Manager{
		dir:  dir,
		enc:  enc,
		now:  time.Now,
		seqs: map[string]int{},
	}, nil
}

// Dir returns the history directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Save writes rec, assigning an ID from its start time when it has none.
func (m *Manager) Save(rec *Record) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if rec.StartedAt.IsZero() {
		rec.StartedAt = m.now()
	}
	if rec.ID == "" {
		rec.ID = m.newID(rec.StartedAt)
	}

	data, err := m.enc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(m.path(rec.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// newID derives a sortable ID, suffixed when another record already uses
// the same second.
func (m *Manager) newID(t time.Time) string {
	base := t.UTC().Format("20060102-150405")
	id := base
	for {
		if _, err := os.Stat(m.path(id)); errors.Is(err, os.ErrNotExist) {
			return id
		}
		m.seqs[base]++
		id = fmt.Sprintf("%s-%d", base, m.seqs[base])
	}
}

// List returns all records, newest first. Unreadable files are skipped.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	records := []Record{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != recordExt {
			continue
		}
		rec, err := m.load(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// Get returns the record with the given ID; "latest" selects the newest.
func (m *Manager) Get(id string) (*Record, error) {
	if id == "latest" {
		records, err := m.List()
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("no runs recorded")
		}
		return &records[0], nil
	}
	if strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid record id: %s", id)
	}
	return m.load(m.path(id))
}

// Delete removes a record by ID.
func (m *Manager) Delete(id string) error {
	path := m.path(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("record not found: %s", id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+recordExt)
}

func (m *Manager) load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("record not found: %s", strings.TrimSuffix(filepath.Base(path), recordExt))
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}
