package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"

	"github.com/csgstat/csgstat/pkg/types"
)

// snapshotsKept bounds the per-login snapshot history in the file store.
const snapshotsKept = 24

// FileProvider implements Database on a single yaml file. It suits the
// common single-household deployment where running a cloud database is
// overkill. All operations read and rewrite the whole file; the data is a
// handful of entries at most.
type FileProvider struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	Entries map[string]types.ConfigEntry `yaml:"entries"`
	// Snapshots holds recent snapshots per login, newest last. Snapshots are
	// stored as json strings because their tri-state fields only have a json
	// representation.
	Snapshots map[string][]storedSnapshot `yaml:"snapshots"`
}

type storedSnapshot struct {
	TakenAt time.Time `yaml:"taken_at"`
	JSON    string    `yaml:"json"`
}

// configuredFile sets up the file provider. It registers flags for
// configuration.
func configuredFile() *FileProvider {
	path := lflag.String("storage-file", "csgstat.yaml", "Path to the yaml state file for the file storage provider")

	f := &FileProvider{}

	lflag.Do(func() {
		f.path = *path
	})

	return f
}

// NewFileProvider returns a provider backed by the given path, bypassing
// flag configuration.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Validate checks if the provider is properly configured.
func (f *FileProvider) Validate() error {
	if f.path == "" {
		return errors.New("storage-file cannot be empty")
	}
	return nil
}

func (f *FileProvider) load() (fileState, error) {
	state := fileState{
		Entries:   map[string]types.ConfigEntry{},
		Snapshots: map[string][]storedSnapshot{},
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := yaml.Unmarshal(b, &state); err != nil {
		return state, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Entries == nil {
		state.Entries = map[string]types.ConfigEntry{}
	}
	if state.Snapshots == nil {
		state.Snapshots = map[string][]storedSnapshot{}
	}
	return state, nil
}

// save writes atomically via a temp file rename so a crash mid-write cannot
// truncate the state.
func (f *FileProvider) save(state fileState) error {
	b, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".csgstat-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (f *FileProvider) GetEntry(_ context.Context, username string) (types.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return types.ConfigEntry{}, err
	}
	entry, ok := state.Entries[username]
	if !ok {
		return types.ConfigEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (f *FileProvider) PutEntry(_ context.Context, entry types.ConfigEntry) error {
	if entry.Username == "" {
		return errors.New("entry username cannot be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	state.Entries[entry.Username] = entry
	return f.save(state)
}

func (f *FileProvider) DeleteEntry(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := state.Entries[username]; !ok {
		return ErrEntryNotFound
	}
	delete(state.Entries, username)
	delete(state.Snapshots, username)
	return f.save(state)
}

func (f *FileProvider) ListEntries(_ context.Context) ([]types.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return nil, err
	}
	entries := make([]types.ConfigEntry, 0, len(state.Entries))
	for _, e := range state.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Username < entries[j].Username
	})
	return entries, nil
}

func (f *FileProvider) RecordSnapshot(_ context.Context, username string, snap types.RefreshSnapshot) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	state, err := f.load()
	if err != nil {
		return err
	}
	snaps := append(state.Snapshots[username], storedSnapshot{
		TakenAt: snap.TakenAt,
		JSON:    string(b),
	})
	if len(snaps) > snapshotsKept {
		snaps = snaps[len(snaps)-snapshotsKept:]
	}
	state.Snapshots[username] = snaps
	return f.save(state)
}

func (f *FileProvider) GetLatestSnapshot(_ context.Context, username string) (types.RefreshSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return types.RefreshSnapshot{}, err
	}
	snaps := state.Snapshots[username]
	if len(snaps) == 0 {
		return types.RefreshSnapshot{}, ErrSnapshotNotFound
	}
	var snap types.RefreshSnapshot
	if err := json.Unmarshal([]byte(snaps[len(snaps)-1].JSON), &snap); err != nil {
		return types.RefreshSnapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (f *FileProvider) Close() error {
	return nil
}
