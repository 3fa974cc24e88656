package panel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Record is where the panel of one location key lives.
type Record struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	// UpdatedAt is unix millis of the last successful placement.
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

type state struct {
	Panels map[string]Record `json:"panels"`
}

// Store keeps the key -> Record mapping in a JSON file. Every call reads
// the file again; nothing is cached in memory.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored mapping. A missing file is an empty mapping. An
// unreadable or corrupt file is also an empty mapping, returned together
// with the error so the caller can log it.
func (s *Store) Load() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (map[string]Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return map[string]Record{}, fmt.Errorf("read state %s: %w", s.path, err)
	}
	var st state
	if err := sonic.Unmarshal(b, &st); err != nil {
		return map[string]Record{}, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	if st.Panels == nil {
		st.Panels = map[string]Record{}
	}
	return st.Panels, nil
}

func (s *Store) save(panels map[string]Record) error {
	b, err := sonic.MarshalIndent(state{Panels: panels}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get returns the record of key.
func (s *Store) Get(key string) (Record, bool, error) {
	panels, err := s.Load()
	rec, ok := panels[key]
	return rec, ok, err
}

// Put overwrites the record of key. A corrupt file is replaced.
func (s *Store) Put(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	panels, _ := s.load()
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().UnixMilli()
	}
	panels[key] = rec
	if err := s.save(panels); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}

// Keys returns the stored location keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	panels, err := s.Load()
	keys := make([]string, 0, len(panels))
	for k := range panels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, err
}
