// Package store persists mined transitions and the mining cursor as a
// single JSON document. Deleting the file forces a full re-mine.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorrupt indicates the store file exists but cannot be parsed. Mining
// cannot safely resume; the operator must discard the file and restart.
var ErrCorrupt = errors.New("store file corrupt")

// Transition is a mined failure-then-fix commit pair. Immutable once
// written, except for verification bookkeeping.
type Transition struct {
	MinedAt      time.Time `json:"mined_at"`
	ChangeReqURL string    `json:"cr_url,omitempty"`
	BadSHA       string    `json:"bad_commit"`
	BadMessage   string    `json:"bad_msg,omitempty"`
	GoodSHA      string    `json:"good_commit"`
	GoodMessage  string    `json:"good_msg,omitempty"`
	Category     string    `json:"category,omitempty"`
	FilesChanged []string  `json:"files_changed,omitempty"`
	ChangeReqID  int64     `json:"cr_id"`
	Unverifiable bool      `json:"unverifiable,omitempty"`
}

// Key returns the stable deduplication key for the transition.
func (t *Transition) Key() string {
	return fmt.Sprintf("%d:%s:%s", t.ChangeReqID, t.BadSHA, t.GoodSHA)
}

// Cursor records mining progress: the last fully-processed change-request
// id plus the keys of already-emitted transitions.
type Cursor struct {
	LastProcessedID int64    `json:"last_processed_id"`
	EmittedKeys     []string `json:"emitted_keys,omitempty"`
}

// storeFile is the persistent JSON structure.
type storeFile struct {
	Transitions []*Transition `json:"transitions"`
	Cursor      Cursor        `json:"cursor"`
}

// Store is the JSON-backed mining result set. All methods are safe for
// concurrent use.
type Store struct {
	transitions []*Transition
	byKey       map[string]*Transition
	emitted     map[string]bool
	cursor      int64
	filePath    string
	mu          sync.Mutex
}

// Open creates a Store backed by the given file path, loading existing
// state if the file exists.
func Open(filePath string) (*Store, error) {
	s := &Store{
		byKey:    make(map[string]*Transition),
		emitted:  make(map[string]bool),
		filePath: filePath,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads existing state from disk. No error if the file doesn't exist.
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v (delete %s to re-mine)", ErrCorrupt, err, s.filePath)
	}

	s.transitions = f.Transitions
	for _, t := range f.Transitions {
		s.byKey[t.Key()] = t
	}
	s.cursor = f.Cursor.LastProcessedID
	for _, k := range f.Cursor.EmittedKeys {
		s.emitted[k] = true
	}
	return nil
}

// saveLocked persists current state via write-temp-then-rename so a crash
// never leaves a truncated store file.
func (s *Store) saveLocked() error {
	keys := make([]string, 0, len(s.emitted))
	for k := range s.emitted {
		keys = append(keys, k)
	}

	f := storeFile{
		Transitions: s.transitions,
		Cursor: Cursor{
			LastProcessedID: s.cursor,
			EmittedKeys:     keys,
		},
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}

// Seen reports whether a transition key was already emitted.
func (s *Store) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted[key]
}

// Append records newly mined transitions and persists immediately. Already
// emitted keys are skipped, making resume after a crash idempotent. Returns
// the number of transitions actually appended.
func (s *Store) Append(transitions []Transition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := 0
	for i := range transitions {
		t := transitions[i]
		key := t.Key()
		if s.emitted[key] {
			continue
		}
		s.emitted[key] = true
		s.transitions = append(s.transitions, &t)
		s.byKey[key] = &t
		appended++
	}
	if appended == 0 {
		return 0, nil
	}
	return appended, s.saveLocked()
}

// AdvanceCursor moves the last-fully-processed marker forward and persists.
// The cursor is monotonic; stale ids are ignored. Appending transitions and
// advancing the cursor are separate persisted steps: a crash between them
// at worst causes dedup-guarded re-emission, never data loss.
func (s *Store) AdvanceCursor(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.cursor {
		return nil
	}
	s.cursor = id
	return s.saveLocked()
}

// LastProcessedID returns the cursor position.
func (s *Store) LastProcessedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// All returns all stored transitions in mined order.
func (s *Store) All() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, 0, len(s.transitions))
	for _, t := range s.transitions {
		out = append(out, *t)
	}
	return out
}

// Get returns a transition by key, or false if absent.
func (s *Store) Get(key string) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byKey[key]
	if !ok {
		return Transition{}, false
	}
	return *t, true
}

// SetCategory annotates a transition with a classifier verdict.
func (s *Store) SetCategory(key, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("transition %s not found", key)
	}
	t.Category = category
	return s.saveLocked()
}

// MarkUnverifiable flags a transition whose artifact blobs cannot be
// fetched. The transition stays in the store.
func (s *Store) MarkUnverifiable(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("transition %s not found", key)
	}
	t.Unverifiable = true
	return s.saveLocked()
}

// Counts summarizes the store for status reporting.
type Counts struct {
	Transitions  int
	Unverifiable int
	Cursor       int64
}

// Stats returns summary counts.
func (s *Store) Stats() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counts{Transitions: len(s.transitions), Cursor: s.cursor}
	for _, t := range s.transitions {
		if t.Unverifiable {
			c.Unverifiable++
		}
	}
	return c
}
